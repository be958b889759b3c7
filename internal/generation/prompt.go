package generation

import (
	"fmt"
	"strings"
)

const DefaultGender = "male"

// BuildPrompt renders the single user message sent to the chat engine.
func BuildPrompt(gender, profession string, age int) string {
	if gender == "" {
		gender = DefaultGender
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Gender: %s\n", gender)
	fmt.Fprintf(&b, "Profession: %s\n", profession)
	fmt.Fprintf(&b, "Age at death: %d\n", age)
	b.WriteString("Describe what your past life was like, and finish with an EPIC death scene.")
	return b.String()
}
