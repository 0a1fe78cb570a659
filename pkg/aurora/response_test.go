// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package aurora

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================
// Object Mode Tests
// ============================================================

func TestResponseDecoder_Object(t *testing.T) {
	d := NewResponseDecoder()
	for _, line := range []string{"Version: 1.0.1", "Battery Level: 87%", "", "Charging: yes"} {
		require.NoError(t, d.FeedObjectLine(line))
	}

	assert.Equal(t, ModeObject, d.Mode())
	obj, ok := d.Response().(*Object)
	require.True(t, ok)
	assert.Equal(t, []string{"version", "batteryLevel", "charging"}, obj.Keys())
	assert.Equal(t, map[string]any{
		"version":      "1.0.1",
		"batteryLevel": float64(87),
		"charging":     true,
	}, obj.Map())
}

func TestResponseDecoder_ObjectRepeatedKey(t *testing.T) {
	d := NewResponseDecoder()
	require.NoError(t, d.FeedObjectLine("file: a.txt"))
	require.NoError(t, d.FeedObjectLine("file: b.txt"))
	require.NoError(t, d.FeedObjectLine("file: c.txt"))

	obj := d.Response().(*Object)
	assert.Equal(t, 1, obj.Len())
	v, _ := obj.Get("file")
	assert.Equal(t, []any{"a.txt", "b.txt", "c.txt"}, v)
}

func TestResponseDecoder_ObjectValueWithColon(t *testing.T) {
	d := NewResponseDecoder()
	require.NoError(t, d.FeedObjectLine("Clock: 12:30"))

	v, _ := d.Response().(*Object).Get("clock")
	assert.Equal(t, "12:30", v)
}

func TestResponseDecoder_ObjectErrors(t *testing.T) {
	t.Run("line too long", func(t *testing.T) {
		d := NewResponseDecoder()
		err := d.FeedObjectLine("key: " + strings.Repeat("x", MaxObjectLineLength))
		assert.ErrorIs(t, err, ErrLineTooLong)
	})

	t.Run("exactly max length", func(t *testing.T) {
		d := NewResponseDecoder()
		line := "key: " + strings.Repeat("x", MaxObjectLineLength-5)
		assert.NoError(t, d.FeedObjectLine(line))
	})

	t.Run("object line in table mode", func(t *testing.T) {
		d := NewResponseDecoder()
		require.NoError(t, d.FeedTableLine("| a | b |"))
		assert.ErrorIs(t, d.FeedObjectLine("x: 1"), ErrInvalidState)
	})

	t.Run("no separator", func(t *testing.T) {
		d := NewResponseDecoder()
		assert.ErrorIs(t, d.FeedObjectLine("no separator here"), ErrMalformedLine)
	})

	t.Run("empty line is a no-op", func(t *testing.T) {
		d := NewResponseDecoder()
		require.NoError(t, d.FeedObjectLine("   "))
		assert.Equal(t, ModeNone, d.Mode())
		assert.Nil(t, d.Response())
	})
}

// ============================================================
// Table Mode Tests
// ============================================================

func TestResponseDecoder_Table(t *testing.T) {
	d := NewResponseDecoder()
	lines := []string{
		"| Name | Size | Modified |",
		"|------|------|==========|",
		"| a.txt | 12 | no |",
		"| b.txt | 3 | yes |",
	}
	for _, line := range lines {
		require.NoError(t, d.FeedTableLine(line))
	}

	assert.Equal(t, ModeTable, d.Mode())
	assert.Equal(t, []string{"name", "size", "modified"}, d.Columns())

	table, ok := d.Response().(Table)
	require.True(t, ok)
	require.Len(t, table, 2)
	for _, row := range table {
		assert.Equal(t, d.Columns(), row.Keys())
	}
	assert.Equal(t, map[string]any{"name": "a.txt", "size": float64(12), "modified": false}, table[0].Map())
	assert.Equal(t, map[string]any{"name": "b.txt", "size": float64(3), "modified": true}, table[1].Map())
}

func TestResponseDecoder_TableRaggedRows(t *testing.T) {
	d := NewResponseDecoder()
	require.NoError(t, d.FeedTableLine("| id | label |"))
	require.NoError(t, d.FeedTableLine("| 1 |"))
	require.NoError(t, d.FeedTableLine("| 2 | two | extra |"))

	table := d.Response().(Table)
	require.Len(t, table, 2)
	assert.Equal(t, []string{"id", "label"}, table[0].Keys())
	assert.Equal(t, map[string]any{"id": float64(1), "label": ""}, table[0].Map())
	assert.Equal(t, []string{"id", "label"}, table[1].Keys())
	assert.Equal(t, map[string]any{"id": float64(2), "label": "two"}, table[1].Map())
}

func TestResponseDecoder_TableHeaderOnly(t *testing.T) {
	d := NewResponseDecoder()
	require.NoError(t, d.FeedTableLine("| id | label |"))

	table, ok := d.Response().(Table)
	require.True(t, ok)
	assert.Empty(t, table)
}

func TestResponseDecoder_TableLineInObjectMode(t *testing.T) {
	d := NewResponseDecoder()
	require.NoError(t, d.FeedObjectLine("a: 1"))
	assert.ErrorIs(t, d.FeedTableLine("| x |"), ErrInvalidState)
}

// ============================================================
// Detection Tests
// ============================================================

func TestResponseDecoder_Detect(t *testing.T) {
	t.Run("leading pipe selects table", func(t *testing.T) {
		d := NewResponseDecoder()
		require.NoError(t, d.FeedDetectLine("| a | b |"))
		assert.Equal(t, ModeTable, d.Mode())
	})

	t.Run("trailing pipe selects table", func(t *testing.T) {
		d := NewResponseDecoder()
		require.NoError(t, d.FeedDetectLine("a | b |"))
		assert.Equal(t, ModeTable, d.Mode())
	})

	t.Run("colon selects object", func(t *testing.T) {
		d := NewResponseDecoder()
		require.NoError(t, d.FeedDetectLine("a: 1"))
		assert.Equal(t, ModeObject, d.Mode())
	})

	t.Run("leading colon is malformed", func(t *testing.T) {
		d := NewResponseDecoder()
		assert.ErrorIs(t, d.FeedDetectLine(":a"), ErrMalformedLine)
		assert.Equal(t, ModeNone, d.Mode())
	})

	t.Run("blank lines before content", func(t *testing.T) {
		d := NewResponseDecoder()
		require.NoError(t, d.FeedText("\n\nuptime: 12\nstate: idle\n"))
		assert.Equal(t, map[string]any{"uptime": float64(12), "state": "idle"}, d.Response().(*Object).Map())
	})
}

func TestResponseDecoder_ResetDetaches(t *testing.T) {
	d := NewResponseDecoder()
	require.NoError(t, d.FeedObjectLine("a: 1"))
	first := d.Response().(*Object)

	d.Reset()
	assert.Equal(t, ModeNone, d.Mode())
	assert.Nil(t, d.Response())

	require.NoError(t, d.FeedObjectLine("b: 2"))
	assert.Equal(t, []string{"a"}, first.Keys())
}

// ============================================================
// Object Tests
// ============================================================

func TestObject_MergeDeep(t *testing.T) {
	inner := NewObject()
	inner.Set("x", float64(1))
	a := NewObject()
	a.Set("nested", inner)
	a.Set("keep", "a")

	innerB := NewObject()
	innerB.Set("y", float64(2))
	b := NewObject()
	b.Set("nested", innerB)
	b.Set("keep", "b")

	a.Merge(b)
	assert.Equal(t, map[string]any{
		"nested": map[string]any{"x": float64(1), "y": float64(2)},
		"keep":   "b",
	}, a.Map())
}

func TestObject_MarshalJSONKeepsOrder(t *testing.T) {
	o := NewObject()
	o.Set("zeta", float64(1))
	o.Set("alpha", "x")

	data, err := json.Marshal(o)
	require.NoError(t, err)
	assert.Equal(t, `{"zeta":1,"alpha":"x"}`, string(data))
}
