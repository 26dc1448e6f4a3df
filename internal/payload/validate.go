package payload

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	apperr "github.com/debemdeboas/coursesync/internal/errors"
	"github.com/debemdeboas/coursesync/internal/model"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the structural sanity of a built course. Failures have
// kind VALIDATION.
func Validate(c *Course) error {
	var problems []string

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return apperr.Wrap(err, apperr.KindValidation, "invalid course")
		}
		for _, fe := range verrs {
			problems = append(problems, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
		}
	}
	if c.Slug == "" && c.Title != "" {
		problems = append(problems, "title produces an empty slug")
	}

	for _, m := range c.Modules {
		for _, l := range m.Lessons {
			if l.ContentType == model.ContentQuiz && l.QuizID == nil {
				problems = append(problems, fmt.Sprintf("lesson %q: quiz lesson without quiz", l.Title))
			}
		}
	}

	if len(problems) > 0 {
		return apperr.New(apperr.KindValidation, "invalid course: "+strings.Join(problems, "; ")).
			WithMeta("problems", problems)
	}
	return nil
}
