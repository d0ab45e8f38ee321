package pipeline

import (
	"fmt"
	"strconv"
	"strings"
)

// RuntimePlaceholder is the token the coupling-configuration template must
// contain; it receives the literal run duration of the target chunk.
const RuntimePlaceholder = "_runtime_"

// Coupling file names inside the case directory. The raw template is kept
// beside the rendered file so the runtime can be re-rendered per chunk.
const (
	FileCoupling         = "namcouple"
	FileCouplingTemplate = "namcouple.tmpl"
)

// TemplateError reports a coupling template missing its placeholder. The
// check happens at generation time so a misconfigured case surfaces before
// any allocation is spent.
type TemplateError struct {
	Template    string
	Placeholder string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("coupling template %s does not contain placeholder %q", e.Template, e.Placeholder)
}

// RenderCoupling substitutes the chunk runtime (in seconds) into the
// namcouple template text.
func RenderCoupling(templateName, templateText string, runtimeSeconds int64) (string, error) {
	if !strings.Contains(templateText, RuntimePlaceholder) {
		return "", &TemplateError{Template: templateName, Placeholder: RuntimePlaceholder}
	}
	return strings.ReplaceAll(templateText, RuntimePlaceholder, strconv.FormatInt(runtimeSeconds, 10)), nil
}
