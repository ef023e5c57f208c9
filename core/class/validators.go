package class

import (
	"crypto/rand"
	"regexp"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/tymastrangelo/groupgrade-sub000/core"
	"github.com/tymastrangelo/groupgrade-sub000/core/grouping"
)

// codeAlphabet leaves out the characters easily mistaken for one another (0/O, 1/I).
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

var (
	joinCodeTag   = "joincode"
	joinCodeText  = "invalid class code"
	joinCodeRegex = regexp.MustCompile(`^[` + codeAlphabet + `]{8}$`)

	groupModeTag  = "groupmode"
	groupModeText = "mode must be one of manual or automatic"
)

// InitValidators registers the class validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(joinCodeTag, joinCodeValidation)
	core.RegisterCustomTranslation(validate, translator, joinCodeTag, joinCodeText)

	_ = validate.RegisterValidation(groupModeTag, groupModeValidation)
	core.RegisterCustomTranslation(validate, translator, groupModeTag, groupModeText)
}

// NewCode returns a random join code. The alphabet has 32 characters, so every byte maps to
// a character without bias.
func NewCode() string {
	b := make([]byte, CodeLength)
	_, _ = rand.Read(b)
	for i, c := range b {
		b[i] = codeAlphabet[int(c)%len(codeAlphabet)]
	}
	return string(b)
}

// NormalizeCode makes user typed codes comparable: "abcd-efgh " -> "ABCDEFGH".
func NormalizeCode(code string) string {
	code = strings.ToUpper(core.CleanString(code))
	return strings.NewReplacer("-", "", " ", "").Replace(code)
}

func joinCodeValidation(fl validator.FieldLevel) bool {
	return joinCodeRegex.MatchString(fl.Field().String())
}

func groupModeValidation(fl validator.FieldLevel) bool {
	return grouping.Mode(fl.Field().String()).Valid()
}
