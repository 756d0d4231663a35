package endpoint

import (
	"bytes"
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"reflect"
	"strconv"
	"strings"
)

// defaultFieldLimit is the maximum byte length of a decoded value when the
// field has no maxLength tag.
var defaultFieldLimit = 16 * 1024 // 16KB

// Unmarshal populates dst (must be a non-nil pointer to a struct) from the
// request.
//
// Supported struct tags:
//   - `query:"name[,json]"`: r.URL.Query()
//   - `header:"name[,json]"`: r.Header
//   - `body:"[,json]"`: r.Body; at most one field per struct
//   - `maxLength:"n"`: maximum byte length of the value
//
// An empty name defaults to the lower-cased field name, and "-" ignores the
// field. When several tags are present, precedence is query, header, body.
// Body fields that are not string or []byte are decoded as JSON and require
// a JSON Content-Type. Fields with no matching data are left unchanged.
//
// Values longer than maxLength produce a 400 error. Without a maxLength tag
// a 16KB limit applies; `maxLength:""` or `maxLength:"0"` removes it. The
// body limit is enforced while reading, so oversized bodies are never
// buffered in full.
func Unmarshal(r *http.Request, dst any) error {
	if r == nil {
		return newEndpointError(http.StatusInternalServerError, "", errors.New("endpoint: decode: nil request"))
	}
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return newEndpointError(http.StatusInternalServerError, "", errors.New("endpoint: decode: dst must be a non-nil pointer"))
	}

	root := v.Elem()
	if root.Kind() == reflect.Pointer {
		if root.IsNil() {
			root.Set(reflect.New(root.Type().Elem()))
		}
		root = root.Elem()
	}
	if root.Kind() != reflect.Struct {
		return newEndpointError(http.StatusInternalServerError, "", errors.New("endpoint: decode: dst must point to a struct (or pointer to struct)"))
	}

	return unmarshalStruct(r, root)
}

type sourceTag struct {
	Source    string
	Name      string
	JSON      bool
	MaxLength int
}

func unmarshalStruct(r *http.Request, structVal reflect.Value) error {
	t := structVal.Type()
	bodyField := ""
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		fv := structVal.Field(i)

		limit, err := fieldLengthLimit(sf)
		if err != nil {
			return newEndpointError(http.StatusInternalServerError, "", fmt.Errorf("endpoint: decode: field %s: %w", sf.Name, err))
		}

		tags := make([]sourceTag, 0, 3)
		for _, source := range []string{"query", "header", "body"} {
			tag, ok, err := parseSourceTag(sf, source, limit)
			if err != nil {
				return newEndpointError(http.StatusInternalServerError, "", fmt.Errorf("endpoint: decode: field %s: %w", sf.Name, err))
			}
			if !ok || tag.Name == "-" {
				continue
			}
			if source == "body" {
				if bodyField != "" {
					return newEndpointError(http.StatusInternalServerError, "", fmt.Errorf("endpoint: decode: multiple body fields: %s and %s", bodyField, sf.Name))
				}
				bodyField = sf.Name
				if !isStringOrBytes(sf.Type) {
					tag.JSON = true
				}
			}
			tags = append(tags, tag)
		}

		for _, tag := range tags {
			raw, ok, err := fetch(r, tag)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if err := setField(fv, raw, tag.JSON); err != nil {
				return newEndpointError(http.StatusBadRequest, "", fmt.Errorf("endpoint: decode: %s %q -> %s: %w", tag.Source, tag.Name, sf.Name, err))
			}
			break
		}
	}
	return nil
}

func fetch(r *http.Request, tag sourceTag) ([]byte, bool, error) {
	var raw []byte
	switch tag.Source {
	case "query":
		if r.URL == nil {
			return nil, false, nil
		}
		vs, ok := r.URL.Query()[tag.Name]
		if !ok || len(vs) == 0 {
			return nil, false, nil
		}
		raw = []byte(vs[0])
	case "header":
		vs := r.Header.Values(tag.Name)
		if len(vs) == 0 {
			return nil, false, nil
		}
		raw = []byte(vs[0])
	case "body":
		if r.Body == nil || r.Body == http.NoBody {
			return nil, false, nil
		}
		if tag.JSON && !requestBodyIsJSON(r) {
			mt := requestBodyMediaType(r)
			if mt == "" {
				mt = "(missing)"
			}
			return nil, false, newEndpointError(http.StatusUnsupportedMediaType, "", fmt.Errorf("endpoint: decode: body: unsupported media type %s", mt))
		}
		body := io.Reader(r.Body)
		if tag.MaxLength > 0 {
			body = io.LimitReader(r.Body, int64(tag.MaxLength)+1)
		}
		b, err := io.ReadAll(body)
		if err != nil {
			return nil, false, newEndpointError(http.StatusBadRequest, "", fmt.Errorf("endpoint: decode: body: %w", err))
		}
		raw = b
	default:
		return nil, false, nil
	}

	if tag.MaxLength > 0 && len(raw) > tag.MaxLength {
		return nil, false, newEndpointError(http.StatusBadRequest, "", fmt.Errorf("endpoint: decode: %s %q: value exceeds max length %d", tag.Source, tag.Name, tag.MaxLength))
	}
	return raw, true, nil
}

func isStringOrBytes(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Kind() == reflect.String || (t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8)
}

func requestBodyIsJSON(r *http.Request) bool {
	mt := requestBodyMediaType(r)
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

func requestBodyMediaType(r *http.Request) string {
	ct := strings.TrimSpace(r.Header.Get("Content-Type"))
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(ct)
	}
	return strings.ToLower(mt)
}

func fieldLengthLimit(sf reflect.StructField) (int, error) {
	val, has := sf.Tag.Lookup("maxLength")
	if !has {
		return defaultFieldLimit, nil
	}
	val = strings.TrimSpace(val)
	if val == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("maxLength: invalid integer %q", val)
	}
	if n < 0 {
		return 0, errors.New("maxLength: must be >= 0")
	}
	return n, nil
}

func parseSourceTag(sf reflect.StructField, source string, limit int) (sourceTag, bool, error) {
	val, has := sf.Tag.Lookup(source)
	if !has {
		return sourceTag{}, false, nil
	}
	name, flags, _ := strings.Cut(val, ",")
	name = strings.TrimSpace(name)
	if name == "" {
		name = strings.ToLower(sf.Name)
	}
	tag := sourceTag{Source: source, Name: name, MaxLength: limit}
	for _, flag := range strings.Split(flags, ",") {
		switch strings.ToLower(strings.TrimSpace(flag)) {
		case "":
		case "json":
			tag.JSON = true
		default:
			return sourceTag{}, false, fmt.Errorf("unknown %s tag flag %q", source, flag)
		}
	}
	return tag, true, nil
}

func setField(v reflect.Value, b []byte, asJSON bool) error {
	if !v.CanSet() {
		return errors.New("field is not settable")
	}
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			v.Set(reflect.New(v.Type().Elem()))
		}
		v = v.Elem()
	}

	if asJSON {
		return json.NewDecoder(bytes.NewReader(b)).Decode(v.Addr().Interface())
	}
	if u, ok := v.Addr().Interface().(encoding.TextUnmarshaler); ok {
		return u.UnmarshalText(b)
	}

	s := string(b)
	switch v.Kind() {
	case reflect.String:
		v.SetString(s)
	case reflect.Slice:
		if v.Type().Elem().Kind() != reflect.Uint8 {
			return fmt.Errorf("unsupported slice type %s", v.Type())
		}
		v.SetBytes(b)
	case reflect.Bool:
		bb, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}
		v.SetBool(bb)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(s, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetFloat(f)
	default:
		return fmt.Errorf("unsupported kind %s", v.Kind())
	}
	return nil
}
