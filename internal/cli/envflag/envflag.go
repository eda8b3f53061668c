// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package envflag defines flags whose defaults come from environment
// variables.
package envflag

import (
	"flag"
	"fmt"
	"strconv"
	"time"
)

// Type lists the value types envflag supports.
type Type interface {
	int | int64 | bool | string | time.Duration
}

// Var defines a flag on fs storing into p. If the environment variable
// envName, looked up with getenv, holds a parseable value, it replaces value
// as the default. Unparseable environment values are ignored.
func Var[T Type](fs *flag.FlagSet, getenv func(string) string, p *T, name, envName string, value T, usage string) {
	*p = value
	if s := getenv(envName); s != "" {
		if v, err := parse[T](s); err == nil {
			*p = v
		}
	}
	fs.Var(&flagValue[T]{p: p}, name, usage+" Can be set by "+envName+" environment variable.")
}

type flagValue[T Type] struct{ p *T }

func (f *flagValue[T]) String() string {
	if f.p == nil {
		return ""
	}
	return fmt.Sprint(*f.p)
}

func (f *flagValue[T]) Set(s string) error {
	v, err := parse[T](s)
	if err != nil {
		return err
	}
	*f.p = v
	return nil
}

// IsBoolFlag lets boolean flags be set without a value.
func (f *flagValue[T]) IsBoolFlag() bool {
	_, ok := any(*new(T)).(bool)
	return ok
}

func parse[T Type](s string) (T, error) {
	var (
		zero T
		v    any
		err  error
	)
	switch any(zero).(type) {
	case int:
		v, err = strconv.Atoi(s)
	case int64:
		v, err = strconv.ParseInt(s, 10, 64)
	case bool:
		v, err = strconv.ParseBool(s)
	case string:
		v = s
	case time.Duration:
		v, err = time.ParseDuration(s)
	}
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}
