package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	for _, s := range AllStatuses {
		got, err := ParseStatus(string(s))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	_, err := ParseStatus("processing")
	assert.Error(t, err)
}

func TestStatusOrder(t *testing.T) {
	next, ok := StatusUploaded.Next()
	assert.True(t, ok)
	assert.Equal(t, StatusOCRComplete, next)

	next, ok = StatusClassified.Next()
	assert.True(t, ok)
	assert.Equal(t, StatusComplete, next)

	_, ok = StatusComplete.Next()
	assert.False(t, ok)
	_, ok = StatusError.Next()
	assert.False(t, ok)

	assert.True(t, StatusComplete.IsTerminal())
	assert.True(t, StatusError.IsTerminal())
	assert.False(t, StatusClassified.IsTerminal())
	assert.Less(t, StatusUploaded.Rank(), StatusOCRComplete.Rank())
	assert.Less(t, StatusClassified.Rank(), StatusComplete.Rank())
}

func TestTransitionValid(t *testing.T) {
	tests := []struct {
		t    Transition
		want bool
	}{
		{TransitionOCR, true},
		{TransitionClassify, true},
		{TransitionSummarize, true},
		{Transition{From: StatusUploaded, To: StatusClassified}, false},
		{Transition{From: StatusOCRComplete, To: StatusUploaded}, false},
		{Transition{From: StatusComplete, To: StatusError}, false},
		{Transition{From: StatusError, To: StatusUploaded}, false},
		{FailTransition(StatusUploaded), true},
		{FailTransition(StatusOCRComplete), true},
		{FailTransition(StatusClassified), true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.t.Valid(), tt.t.String())
	}
}

func TestCanonicalCategory(t *testing.T) {
	tests := []struct {
		raw   string
		want  Category
		match bool
	}{
		{"Invoice", CategoryInvoice, true},
		{"invoice", CategoryInvoice, true},
		{" Kitchen Supplies \n", CategoryKitchenSupplies, true},
		{"`W2`", CategoryW2, true},
		{`"Medicine".`, CategoryMedicine, true},
		{"Medicine.", CategoryMedicine, true},
		{"Other", CategoryOther, true},
		{"Unknown Category", CategoryOther, false},
		{"The category is Invoice", CategoryOther, false},
		{"", CategoryOther, false},
	}
	for _, tt := range tests {
		got, ok := CanonicalCategory(tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
		assert.Equal(t, tt.match, ok, tt.raw)
	}
	assert.Len(t, CategoryLabels(), 8)
}

func TestStageFieldsApply(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := &DocumentRecord{DocumentID: "a", Status: StatusOCRComplete, ExtractedText: "text", LastUpdated: t0}

	cat := CategoryW2
	StageFields{Classification: &cat, LastUpdated: t0.Add(time.Minute)}.Apply(rec, StatusClassified)
	assert.Equal(t, StatusClassified, rec.Status)
	assert.Equal(t, CategoryW2, rec.Classification)
	assert.Equal(t, "text", rec.ExtractedText)
	assert.Equal(t, t0.Add(time.Minute), rec.LastUpdated)

	StageFields{LastUpdated: t0}.Apply(rec, StatusComplete)
	assert.Equal(t, t0.Add(time.Minute), rec.LastUpdated, "lastUpdated never moves backwards")
}

func TestKeyValueEncoding(t *testing.T) {
	s, err := EncodeKeyValues(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", s)

	kv, err := DecodeKeyValues("")
	require.NoError(t, err)
	assert.Nil(t, kv)

	kv, err = DecodeKeyValues(`{"Total:":"$5"}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Total:": "$5"}, kv)

	_, err = DecodeKeyValues("{")
	assert.Error(t, err)
}

func TestAcceptedFileTypes(t *testing.T) {
	assert.True(t, IsAcceptedFileType("image/jpeg"))
	assert.True(t, IsAcceptedFileType("image/png"))
	assert.True(t, IsAcceptedFileType("application/pdf"))
	assert.False(t, IsAcceptedFileType("image/gif"))
	assert.False(t, IsAcceptedFileType(""))
}
