package fetch

import (
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var validate *validator.Validate
var translator ut.Translator

func init() {
	validate = validator.New()
	translator, _ = ut.New(en.New(), en.New()).GetTranslator("en")
	err := en_translations.RegisterDefaultTranslations(validate, translator)
	if err != nil {
		panic(err)
	}
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}

		return name
	})
}

// candidate is the admission model for a single input URL.
type candidate struct {
	URL string `json:"url" validate:"required,http_url"`
}

// AdmitURL reports whether raw is syntactically an absolute http or
// https URL. Anything else is rejected before any network access.
func AdmitURL(raw string) error {
	if err := validate.Struct(candidate{URL: raw}); err != nil {
		verrors, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}

		msgs := make([]string, 0, len(verrors))
		for _, verror := range verrors {
			msgs = append(msgs, verror.Translate(translator))
		}

		return failure(ErrInvalidURL, "%q: %s", raw, strings.Join(msgs, "; "))
	}

	return nil
}
