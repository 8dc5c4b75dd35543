package validation

import "testing"

type demoInput struct {
	Email    string `json:"email" validate:"required,email"`
	Postcode string `json:"postcode" validate:"required,postcode"`
	Start    string `json:"start_time" validate:"omitempty,timeofday"`
}

func Test_Validate_UsesJSONFieldNames(t *testing.T) {
	errs, err := Validate(demoInput{Email: "nope", Postcode: "!!"})
	if err != nil {
		t.Fatal(err)
	}
	if errs == nil {
		t.Fatal("expected errors")
	}
	if len(errs["email"]) == 0 || len(errs["postcode"]) == 0 {
		t.Fatalf("errors keyed wrong: %+v", errs)
	}
	if len(errs["Email"]) != 0 {
		t.Fatalf("struct names leaked: %+v", errs)
	}
}

func Test_Validate_Postcode(t *testing.T) {
	ok := []string{"2000", "3121", "90210", "SW1A 1AA", "EC1A"}
	for _, p := range ok {
		if errs, _ := Validate(demoInput{Email: "a@b.co", Postcode: p}); errs != nil {
			t.Fatalf("%q should be valid: %+v", p, errs)
		}
	}
	bad := []string{"!", "a", "this is not a postcode at all"}
	for _, p := range bad {
		if errs, _ := Validate(demoInput{Email: "a@b.co", Postcode: p}); errs == nil {
			t.Fatalf("%q should be rejected", p)
		}
	}
}

func Test_Validate_TimeOfDay(t *testing.T) {
	for _, v := range []string{"00:00", "09:30", "23:59"} {
		if errs, _ := Validate(demoInput{Email: "a@b.co", Postcode: "2000", Start: v}); errs != nil {
			t.Fatalf("%q should be valid: %+v", v, errs)
		}
	}
	for _, v := range []string{"24:00", "9:30", "12:60", "noon"} {
		if errs, _ := Validate(demoInput{Email: "a@b.co", Postcode: "2000", Start: v}); errs == nil {
			t.Fatalf("%q should be rejected", v)
		}
	}
}
