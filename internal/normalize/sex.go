package normalize

import (
	"strings"

	"github.com/saludmental/cohortload/internal/model"
)

// SexFrom classifies a free-text sex value by normalized prefix:
// "f..." is Femenino, "m..." is Masculino, anything else is Otro.
// Total: there is no error path.
func SexFrom(s string) model.Sex {
	n := Text(s)
	switch {
	case strings.HasPrefix(n, "f"):
		return model.SexFemale
	case strings.HasPrefix(n, "m"):
		return model.SexMale
	}
	return model.SexOther
}
