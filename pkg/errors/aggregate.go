package errors

import (
	"go.uber.org/multierr"
)

// Aggregate folds a multierr-combined error into one typed error. The first
// typed error decides the code; every message is listed in the details.
func Aggregate(err error, message string) error {
	if err == nil {
		return nil
	}
	errs := multierr.Errors(err)
	code := CodeValidation
	found := false
	messages := make([]string, 0, len(errs))
	for _, e := range errs {
		if typed := As(e); typed != nil {
			if !found {
				code = typed.Code()
				found = true
			}
			messages = append(messages, typed.Message())
			continue
		}
		messages = append(messages, e.Error())
	}
	return Wrap(code, err, message).WithDetails(messages)
}
