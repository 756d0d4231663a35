package jsonrpc

// Translator maps a fault data string to its display form.
type Translator interface {
	Translate(s string) string
}

// TranslatorFunc adapts a function to a Translator.
type TranslatorFunc func(s string) string

func (f TranslatorFunc) Translate(s string) string {
	return f(s)
}

// Catalog is a Translator backed by a fixed message table. Strings without
// an entry are returned unchanged.
type Catalog map[string]string

func (c Catalog) Translate(s string) string {
	if t, ok := c[s]; ok {
		return t
	}
	return s
}

// translateData applies t to the string entries of fault data. Values of
// other types are returned as is.
func translateData(t Translator, data any) any {
	if t == nil || data == nil {
		return data
	}
	switch d := data.(type) {
	case string:
		return t.Translate(d)
	case []string:
		out := make([]string, len(d))
		for i, s := range d {
			out[i] = t.Translate(s)
		}
		return out
	case []any:
		out := make([]any, len(d))
		for i, v := range d {
			if s, ok := v.(string); ok {
				out[i] = t.Translate(s)
			} else {
				out[i] = v
			}
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(d))
		for k, s := range d {
			out[k] = t.Translate(s)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(d))
		for k, v := range d {
			if s, ok := v.(string); ok {
				out[k] = t.Translate(s)
			} else {
				out[k] = v
			}
		}
		return out
	}
	return data
}
