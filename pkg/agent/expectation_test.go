package agent

import "testing"

func TestHeuristicChecker_Met(t *testing.T) {
	checker := NewHeuristicChecker()

	tests := []struct {
		name    string
		outputs map[string]string
		want    bool
	}{
		{
			name:    "empty outputs",
			outputs: map[string]string{},
			want:    false,
		},
		{
			name:    "nil outputs",
			outputs: nil,
			want:    false,
		},
		{
			name:    "camel cased resource key",
			outputs: map[string]string{"bucketName": "artifacts-prod"},
			want:    true,
		},
		{
			name:    "resource token only in value",
			outputs: map[string]string{"queue": "arn:aws:sqs:eu-west-1:123:jobs"},
			want:    false,
		},
		{
			name:    "arn key",
			outputs: map[string]string{"queueArn": "arn:aws:sqs:eu-west-1:123:jobs"},
			want:    true,
		},
		{
			name:    "endpoint key",
			outputs: map[string]string{"apiEndpoint": "https://api.example.com"},
			want:    true,
		},
		{
			name:    "stack listing",
			outputs: map[string]string{"stacks": "my-stack"},
			want:    true,
		},
		{
			name:    "no resource tokens",
			outputs: map[string]string{"foo": "bar"},
			want:    false,
		},
		{
			name:    "token in value does not rescue a plain key",
			outputs: map[string]string{"result": "https://api.example.com/endpoint"},
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := checker.Met("create a bucket", tt.outputs); got != tt.want {
				t.Errorf("Met() = %v, want %v", got, tt.want)
			}
		})
	}
}
