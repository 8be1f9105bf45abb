// Copyright (C) 2025 VNSync Authors.
// See LICENSE for copying information.

package process

import (
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// Bind registers one flag per field of the config struct, using the
// field's help and default tags. Nested structs become dot-separated
// prefixes, so a field API.BaseURL binds the flag api.base-url. config
// must be a pointer to a struct; an unsupported field type panics, as
// it is a programmer error.
func Bind(flags *pflag.FlagSet, config interface{}) {
	ptr := reflect.ValueOf(config)
	if ptr.Kind() != reflect.Ptr || ptr.Elem().Kind() != reflect.Struct {
		panic("process: Bind expects a pointer to a struct")
	}
	bindStruct(flags, ptr.Elem(), "")
}

func bindStruct(flags *pflag.FlagSet, val reflect.Value, prefix string) {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if field.PkgPath != "" {
			continue
		}
		name := prefix + hyphenate(field.Name)
		help := field.Tag.Get("help")
		def := field.Tag.Get("default")
		addr := val.Field(i).Addr()

		switch {
		case field.Type == reflect.TypeOf(time.Duration(0)):
			flags.DurationVar(addr.Interface().(*time.Duration), name, mustDuration(name, def), help)
		case field.Type.Kind() == reflect.Struct:
			bindStruct(flags, val.Field(i), name+".")
		case field.Type.Kind() == reflect.String:
			flags.StringVar(addr.Interface().(*string), name, def, help)
		case field.Type.Kind() == reflect.Bool:
			flags.BoolVar(addr.Interface().(*bool), name, def == "true", help)
		case field.Type.Kind() == reflect.Int:
			flags.IntVar(addr.Interface().(*int), name, mustInt(name, def), help)
		case field.Type.Kind() == reflect.Float64:
			flags.Float64Var(addr.Interface().(*float64), name, mustFloat(name, def), help)
		case field.Type == reflect.TypeOf([]string(nil)):
			var defs []string
			if def != "" {
				defs = strings.Split(def, ",")
			}
			flags.StringSliceVar(addr.Interface().(*[]string), name, defs, help)
		default:
			panic("process: unsupported config field type for " + name)
		}
	}
}

// hyphenate converts a Go field name to a flag name, e.g. BaseURL to
// base-url.
func hyphenate(name string) string {
	var out strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		if r >= 'A' && r <= 'Z' {
			lowerBefore := i > 0 && isLower(runes[i-1])
			lowerAfter := i+1 < len(runes) && isLower(runes[i+1])
			if i > 0 && (lowerBefore || lowerAfter) {
				out.WriteRune('-')
			}
			r += 'a' - 'A'
		}
		out.WriteRune(r)
	}
	return out.String()
}

func isLower(r rune) bool { return r >= 'a' && r <= 'z' }

func mustInt(name, def string) int {
	if def == "" {
		return 0
	}
	v, err := strconv.Atoi(def)
	if err != nil {
		panic("process: invalid int default for " + name)
	}
	return v
}

func mustFloat(name, def string) float64 {
	if def == "" {
		return 0
	}
	v, err := strconv.ParseFloat(def, 64)
	if err != nil {
		panic("process: invalid float default for " + name)
	}
	return v
}

func mustDuration(name, def string) time.Duration {
	if def == "" {
		return 0
	}
	v, err := time.ParseDuration(def)
	if err != nil {
		panic("process: invalid duration default for " + name)
	}
	return v
}
