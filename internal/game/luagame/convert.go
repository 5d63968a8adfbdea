package luagame

import (
	"encoding/json"
	"math"

	"github.com/Shopify/go-lua"
)

// pushJSON decodes raw JSON and pushes it as a Lua value.
func pushJSON(l *lua.State, raw json.RawMessage) {
	if len(raw) == 0 {
		l.PushNil()
		return
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		l.PushNil()
		return
	}
	pushValue(l, v)
}

// pushValue pushes a JSON-shaped Go value.
func pushValue(l *lua.State, v any) {
	switch v := v.(type) {
	case nil:
		l.PushNil()
	case bool:
		l.PushBoolean(v)
	case string:
		l.PushString(v)
	case float64:
		l.PushNumber(v)
	case int:
		l.PushInteger(v)
	case []any:
		l.CreateTable(len(v), 0)
		for i, item := range v {
			pushValue(l, item)
			l.RawSetInt(-2, i+1)
		}
	case map[string]any:
		l.CreateTable(0, len(v))
		for k, item := range v {
			pushValue(l, item)
			l.SetField(-2, k)
		}
	default:
		// Structs and typed slices go through their JSON form.
		raw, err := json.Marshal(v)
		if err != nil {
			l.PushNil()
			return
		}
		pushJSON(l, raw)
	}
}

// toValue converts the Lua value at index to a JSON-shaped Go value.
func toValue(l *lua.State, index int) any {
	switch l.TypeOf(index) {
	case lua.TypeString:
		s, _ := l.ToString(index)
		return s
	case lua.TypeNumber:
		n, _ := l.ToNumber(index)
		return normalizeNumber(n)
	case lua.TypeBoolean:
		return l.ToBoolean(index)
	case lua.TypeTable:
		return tableToValue(l, index)
	default:
		return nil
	}
}

// tableToValue returns a []any for sequences and a map[string]any otherwise.
func tableToValue(l *lua.State, index int) any {
	index = l.AbsIndex(index)
	isArray := true
	maxIndex, count := 0, 0
	l.PushNil()
	for l.Next(index) {
		if isArray {
			if l.TypeOf(-2) != lua.TypeNumber {
				isArray = false
			} else if i, ok := l.ToInteger(-2); ok && i > 0 {
				count++
				maxIndex = max(maxIndex, i)
			} else {
				isArray = false
			}
		}
		l.Pop(1)
	}

	if isArray && count > 0 && maxIndex == count {
		out := make([]any, 0, count)
		for i := 1; i <= count; i++ {
			l.RawGetInt(index, i)
			out = append(out, toValue(l, -1))
			l.Pop(1)
		}
		return out
	}
	return tableToMap(l, index)
}

func tableToMap(l *lua.State, index int) map[string]any {
	out := map[string]any{}
	if l.TypeOf(index) != lua.TypeTable {
		return out
	}
	index = l.AbsIndex(index)
	l.PushNil()
	for l.Next(index) {
		if l.TypeOf(-2) == lua.TypeString {
			key, _ := l.ToString(-2)
			out[key] = toValue(l, -1)
		}
		l.Pop(1)
	}
	return out
}

func normalizeNumber(n float64) any {
	if math.Mod(n, 1) == 0 && math.Abs(n) < 1<<53 {
		return int(n)
	}
	return n
}
