package gcs

import "testing"

func TestParseURI(t *testing.T) {
	tests := []struct {
		uri     string
		bucket  string
		object  string
		wantErr bool
	}{
		{"gs://statements/2024/march.pdf", "statements", "2024/march.pdf", false},
		{"gs://b/o.csv", "b", "o.csv", false},
		{"gs://bucket-only", "", "", true},
		{"gs://bucket/", "", "", true},
		{"gs://bucket/folder/", "", "", true},
		{"gs:///object", "", "", true},
		{"s3://bucket/object", "", "", true},
		{"/local/file.pdf", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, object, err := ParseURI(tt.uri)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if bucket != tt.bucket || object != tt.object {
				t.Errorf("got (%q, %q), want (%q, %q)", bucket, object, tt.bucket, tt.object)
			}
		})
	}
}

func TestIsURI(t *testing.T) {
	if !IsURI("gs://b/o") || IsURI("xlsx:gs://b/o") || IsURI("file.csv") {
		t.Error("IsURI misclassified input")
	}
}
