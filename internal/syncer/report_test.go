package syncer

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnitResultOK(t *testing.T) {
	assert.True(t, UnitResult{MemberID: "m1"}.OK())
	assert.False(t, UnitResult{MemberID: "m1", Err: errors.New("fetch failed")}.OK())
	assert.False(t, UnitResult{MemberID: "m1", FieldErrors: []error{errors.New("nickname rejected")}}.OK())
}

func TestReportFailures(t *testing.T) {
	report := Report{Results: []UnitResult{
		{MemberID: "m1"},
		{MemberID: "m2", Err: ErrNoSession},
		{MemberID: "m3", FieldErrors: []error{errors.New("tag update failed")}},
	}}
	failures := report.Failures()
	assert.Len(t, failures, 2)
	assert.Equal(t, "m2", failures[0].MemberID)
	assert.Equal(t, "m3", failures[1].MemberID)
}

func TestUnitResultJSONRendersErrorsAsStrings(t *testing.T) {
	result := UnitResult{
		MemberID:    "m1",
		Err:         errors.New("member gone"),
		FieldErrors: []error{errors.New("nickname rejected")},
	}
	raw, err := json.Marshal(result)
	assert.NoError(t, err)

	var decoded map[string]any
	assert.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "m1", decoded["member_id"])
	assert.Equal(t, "member gone", decoded["error"])
	assert.Equal(t, []any{"nickname rejected"}, decoded["field_errors"])
}
