package namelist

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// ParseBool accepts Fortran logicals (.true., T, .f.) as well as
// true/false in any case.
func ParseBool(v string) (bool, error) {
	s := strings.ToLower(strings.Trim(strings.TrimSpace(v), "'\""))
	s = strings.Trim(s, ".")
	switch s {
	case "t", "true", "y", "yes":
		return true, nil
	case "f", "false", "n", "no":
		return false, nil
	}
	return false, fmt.Errorf("not a logical value: `%s`", v)
}

// Unquote removes the quotes around a Fortran string value.
func Unquote(v string) string {
	v = strings.TrimSpace(v)
	if len(v) >= 2 && (v[0] == '\'' || v[0] == '"') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return v
}

// Quote renders s as a Fortran string literal.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// FormatBool renders b as a Fortran logical.
func FormatBool(b bool) string {
	if b {
		return ".true."
	}
	return ".false."
}

// Decode copies the values of g into the fields of the struct
// pointed by v tagged with `nml:"key"`. Keys absent from g leave
// the field untouched, so v can be pre-filled with defaults.
func Decode(g *Group, v interface{}) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("Decode: expected pointer to struct, got %T", v)
	}
	rv = rv.Elem()
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		key := field.Tag.Get("nml")
		if key == "" || key == "-" {
			continue
		}
		raw, ok := g.Get(key)
		if !ok {
			continue
		}
		if err := setField(rv.Field(i), raw); err != nil {
			return fmt.Errorf("%s %s: %w", g.Header(), key, err)
		}
	}
	return nil
}

func setField(fv reflect.Value, raw string) error {
	switch fv.Kind() {
	case reflect.String:
		fv.SetString(Unquote(raw))
	case reflect.Bool:
		b, err := ParseBool(raw)
		if err != nil {
			return err
		}
		fv.SetBool(b)
	case reflect.Int, reflect.Int64, reflect.Int32:
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return err
		}
		fv.SetInt(n)
	case reflect.Float64, reflect.Float32:
		f, err := strconv.ParseFloat(strings.Replace(strings.TrimSpace(strings.ToLower(raw)), "d", "e", 1), 64)
		if err != nil {
			return err
		}
		fv.SetFloat(f)
	case reflect.Slice:
		if fv.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type %s", fv.Type())
		}
		var items []string
		for _, item := range strings.Split(raw, ",") {
			item = Unquote(item)
			if item != "" {
				items = append(items, item)
			}
		}
		fv.Set(reflect.ValueOf(items))
	default:
		return fmt.Errorf("unsupported field type %s", fv.Type())
	}
	return nil
}
