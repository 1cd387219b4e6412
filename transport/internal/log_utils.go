// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package internal

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sort"

	"github.com/iancoleman/strcase"
	"github.com/visisec/edge-sdk/internal/log"
)

// Logger adds message-level debug logging to the shared logger.
type Logger struct{ log.Logger }

// Payload logs an outbound or inbound payload at debug level, flattening
// struct fields into snake_case attributes.
func (l Logger) Payload(
	ctx context.Context,
	direction, event string,
	payload any,
) {
	// This is expensive; bail out if we don't need it.
	if !l.Enabled(ctx, slog.LevelDebug) {
		return
	}

	attrs := []slog.Attr{slog.String("event", event)}
	val := realValue(reflect.ValueOf(payload))
	if !missingValue(val) {
		attrs = append(attrs, reflectAttr("payload", val)...)
	}
	l.Log(ctx, slog.LevelDebug, fmt.Sprintf("%s message", direction), attrs...)
}

func reflectAttrs(val reflect.Value) []slog.Attr {
	typ := val.Type()
	var attrs []slog.Attr
	for i := range typ.NumField() {
		f := typ.Field(i)
		if !f.IsExported() {
			continue
		}

		fv := realValue(val.Field(i))
		if f.Anonymous && fv.Kind() == reflect.Struct {
			attrs = append(attrs, reflectAttrs(fv)...)
			continue
		}
		attrs = append(attrs, reflectAttr(strcase.ToSnake(f.Name), fv)...)
	}
	return attrs
}

func reflectAttr(name string, val reflect.Value) []slog.Attr {
	// Ignore zero values to keep the log cleaner.
	if missingValue(val) {
		return nil
	}

	switch v := val.Interface().(type) {
	case []byte:
		// Image data is not useful to log.
		return []slog.Attr{slog.Int(name+"_bytes", len(v))}
	}

	switch val.Kind() {
	case reflect.Struct:
		return group(name, reflectAttrs(val))

	case reflect.Map:
		if val.Type().Key().Kind() != reflect.String {
			break
		}
		keys := val.MapKeys()
		sort.Slice(keys, func(i, j int) bool {
			return keys[i].String() < keys[j].String()
		})
		var as []slog.Attr
		for _, k := range keys {
			as = append(as, reflectAttr(
				strcase.ToSnake(k.String()),
				realValue(val.MapIndex(k)),
			)...)
		}
		return group(name, as)
	}

	return []slog.Attr{slog.Any(name, val.Interface())}
}

func group(name string, as []slog.Attr) []slog.Attr {
	if len(as) == 0 {
		return nil
	}
	cpy := make([]any, len(as))
	for i, a := range as {
		cpy[i] = a
	}
	return []slog.Attr{slog.Group(name, cpy...)}
}

func realValue(val reflect.Value) reflect.Value {
	for val.Kind() == reflect.Pointer || val.Kind() == reflect.Interface {
		val = val.Elem()
	}
	return val
}

func missingValue(val reflect.Value) bool {
	return val.Kind() == reflect.Invalid || val.IsZero()
}
