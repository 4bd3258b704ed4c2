package form

import (
	"embed"
	"html/template"
	"io"

	"github.com/labstack/echo/v4"
)

//go:embed templates/*.html
var templateFiles embed.FS

var monthNames = []string{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	// seq yields [from, to] inclusive for numeric selects.
	"seq": func(from, to int) []int {
		out := make([]int, 0, to-from+1)
		for n := from; n <= to; n++ {
			out = append(out, n)
		}
		return out
	},
	"months": func() []string { return monthNames },
	// dict packs key/value pairs for nested template invocations.
	"dict": func(pairs ...interface{}) map[string]interface{} {
		out := make(map[string]interface{}, len(pairs)/2)
		for i := 0; i+1 < len(pairs); i += 2 {
			key, ok := pairs[i].(string)
			if !ok {
				continue
			}
			out[key] = pairs[i+1]
		}
		return out
	},
}).ParseFS(templateFiles, "templates/*.html"))

// Renderer satisfies echo.Renderer over the embedded templates.
type Renderer struct{}

var _ echo.Renderer = Renderer{}

func (Renderer) Render(w io.Writer, name string, data interface{}, _ echo.Context) error {
	return templates.ExecuteTemplate(w, name, data)
}
