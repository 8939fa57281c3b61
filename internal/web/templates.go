package web

import (
	"fmt"
	"html/template"
	"strings"
)

var funcs = template.FuncMap{
	"lower": func(v any) string { return strings.ToLower(fmt.Sprint(v)) },
	"dir": func(lang string) string {
		if lang == "ar" {
			return "rtl"
		}
		return "ltr"
	},
}
