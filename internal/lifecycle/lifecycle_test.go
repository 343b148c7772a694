package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	k, ok := ParseKind("Builds")
	require.True(t, ok)
	require.Equal(t, Build, k)

	_, ok = ParseKind("changes")
	require.False(t, ok)
}

func TestKindSchema(t *testing.T) {
	require.True(t, Builder.Running())
	require.True(t, Worker.Running())
	require.False(t, Build.Running())

	require.Equal(t, "build_requests", BuildRequest.MetricStem())
	require.Equal(t, "buildsets", BuildSet.MetricStem())
	require.Equal(t, []string{"builder_id", "worker_id", "step_name", "step_number"}, Step.LabelNames())
	require.Nil(t, Kind("changes").LabelNames())
}

func TestResultFromCode(t *testing.T) {
	code := func(c int) *int { return &c }

	tests := []struct {
		name string
		code *int
		want Result
	}{
		{"success", code(CodeSuccess), ResultSuccess},
		{"warnings", code(CodeWarnings), ResultSuccess},
		{"skipped", code(CodeSkipped), ResultSuccess},
		{"failure", code(CodeFailure), ResultFailure},
		{"exception", code(CodeException), ResultError},
		{"cancelled", code(CodeCancelled), ResultError},
		{"retry", code(CodeRetry), ResultPending},
		{"unknown", code(42), ResultError},
		{"absent", nil, ResultError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ResultFromCode(tt.code))
		})
	}

	require.True(t, ResultSuccess.Succeeded())
	require.False(t, ResultPending.Succeeded())
}
