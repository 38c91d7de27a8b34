package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"gcodeview/pkg/config"
	"gcodeview/pkg/errors"
)

func TestReadLines(t *testing.T) {
	input := "G21\r\nG1 X10\n\nM30"
	lines, err := ReadLines(strings.NewReader(input), 0)
	if err != nil {
		t.Fatalf("ReadLines failed: %v", err)
	}

	wantText := []string{"G21", "G1 X10", "", "M30"}
	wantOffset := []int{0, 5, 12, 13}
	if len(lines) != len(wantText) {
		t.Fatalf("expected %d lines, got %d", len(wantText), len(lines))
	}
	for i, l := range lines {
		if l.Text != wantText[i] {
			t.Errorf("line %d: expected %q, got %q", i, wantText[i], l.Text)
		}
		want := float64(wantOffset[i]) / float64(len(input)) * 100
		if l.Percentage != want {
			t.Errorf("line %d: expected %v%%, got %v", i, want, l.Percentage)
		}
	}
}

func TestReadLinesKnownSize(t *testing.T) {
	lines, err := ReadLines(strings.NewReader("G1\nG1\n"), 6)
	if err != nil {
		t.Fatalf("ReadLines failed: %v", err)
	}
	if len(lines) != 2 || lines[1].Percentage != 50 {
		t.Errorf("expected second line at 50%%, got %+v", lines)
	}
}

func TestReadLinesEmpty(t *testing.T) {
	lines, err := ReadLines(strings.NewReader(""), 0)
	if err != nil {
		t.Fatalf("ReadLines failed: %v", err)
	}
	if len(lines) != 0 {
		t.Errorf("expected no lines, got %d", len(lines))
	}
}

func TestFromStrings(t *testing.T) {
	lines := FromStrings([]string{"a", "b", "c", "d"})
	if lines[2].Percentage != 50 || lines[3].Text != "d" {
		t.Errorf("unexpected lines %+v", lines)
	}
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "part.gcode")
	if err := os.WriteFile(path, []byte("G90\nG1 X1 Y1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	lines, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if len(lines) != 2 || lines[1].Text != "G1 X1 Y1" {
		t.Errorf("unexpected lines %+v", lines)
	}

	_, err = ReadFile(filepath.Join(dir, "missing.gcode"))
	if !errors.HasCode(err, errors.ErrSource) {
		t.Errorf("expected SOURCE error, got %v", err)
	}
}

func TestParseS3URI(t *testing.T) {
	tests := []struct {
		uri     string
		bucket  string
		key     string
		wantErr bool
	}{
		{"s3://prints/benchy.gcode", "prints", "benchy.gcode", false},
		{"s3://prints/dir/sub/part.gcode", "prints", "dir/sub/part.gcode", false},
		{"s3://prints/", "", "", true},
		{"s3:///key", "", "", true},
		{"http://prints/key", "", "", true},
	}
	for _, tt := range tests {
		bucket, key, err := ParseS3URI(tt.uri)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: expected error=%v, got %v", tt.uri, tt.wantErr, err)
			continue
		}
		if bucket != tt.bucket || key != tt.key {
			t.Errorf("%s: expected %s/%s, got %s/%s", tt.uri, tt.bucket, tt.key, bucket, key)
		}
	}
}

type fakeGetter struct {
	objects map[string]string
	calls   []string
}

func (f *fakeGetter) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	name := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	f.calls = append(f.calls, name)
	body, ok := f.objects[name]
	if !ok {
		return nil, fmt.Errorf("NoSuchKey: %s", name)
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: aws.Int64(int64(len(body))),
	}, nil
}

func TestS3Read(t *testing.T) {
	fake := &fakeGetter{objects: map[string]string{"prints/cube.gcode": "G28\nG1 Z0.2\nG1 X5 E1\n"}}
	loader := NewLoader(config.S3Settings{}).WithS3(NewS3WithClient(fake))

	lines, err := loader.Load(context.Background(), "s3://prints/cube.gcode")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(lines) != 3 || lines[2].Text != "G1 X5 E1" {
		t.Errorf("unexpected lines %+v", lines)
	}
	offset, size := 4.0, 21.0
	if lines[1].Percentage != offset/size*100 {
		t.Errorf("expected byte-offset percentage, got %v", lines[1].Percentage)
	}

	_, err = loader.Load(context.Background(), "s3://prints/missing.gcode")
	if !errors.HasCode(err, errors.ErrSource) {
		t.Errorf("expected SOURCE error, got %v", err)
	}
	if len(fake.calls) != 2 {
		t.Errorf("expected 2 GetObject calls, got %v", fake.calls)
	}
}

func TestLoadStdin(t *testing.T) {
	loader := NewLoader(config.S3Settings{})
	loader.Stdin = strings.NewReader("G1 X1\nG1 X2\n")

	lines, err := loader.Load(context.Background(), "-")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(lines) != 2 {
		t.Errorf("expected 2 lines, got %d", len(lines))
	}
}
