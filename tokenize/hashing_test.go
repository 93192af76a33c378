package tokenize

import (
	"testing"

	"github.com/zhuotongchen/crowd-coachable-recommendations/core"
)

func TestHashing_EncodeBatch(t *testing.T) {
	tests := []struct {
		name     string
		titles   []string
		opt      core.EncodeOptions
		wantMask [][]int
		wantErr  bool
	}{
		{
			name:     "pad to max length",
			titles:   []string{"red apple", "banana"},
			opt:      core.EncodeOptions{MaxLength: 4, Truncate: true},
			wantMask: [][]int{{1, 1, 0, 0}, {1, 0, 0, 0}},
		},
		{
			name:     "truncate long title",
			titles:   []string{"a b c d e f"},
			opt:      core.EncodeOptions{MaxLength: 3, Truncate: true},
			wantMask: [][]int{{1, 1, 1}},
		},
		{
			name:    "overflow without truncation",
			titles:  []string{"a b c d"},
			opt:     core.EncodeOptions{MaxLength: 2, Truncate: false},
			wantErr: true,
		},
		{
			name:    "invalid max length",
			titles:  []string{"a"},
			opt:     core.EncodeOptions{MaxLength: 0},
			wantErr: true,
		},
	}

	tk := NewHashing(64)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batch, err := tk.EncodeBatch(tt.titles, tt.opt)
			if tt.wantErr {
				if err == nil {
					t.Fatal("EncodeBatch() = nil error, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("EncodeBatch() error = %v", err)
			}
			if batch.NumRows() != len(tt.titles) {
				t.Fatalf("NumRows() = %d, want %d", batch.NumRows(), len(tt.titles))
			}
			for i, wantRow := range tt.wantMask {
				for j, want := range wantRow {
					if batch.Mask[i][j] != want {
						t.Errorf("Mask[%d][%d] = %d, want %d", i, j, batch.Mask[i][j], want)
					}
					if want == 0 && batch.IDs[i][j] != PadID {
						t.Errorf("IDs[%d][%d] = %d, want pad id %d", i, j, batch.IDs[i][j], PadID)
					}
					if want == 1 && batch.IDs[i][j] == PadID {
						t.Errorf("IDs[%d][%d] is pad id at valid position", i, j)
					}
				}
			}
		})
	}
}

func TestHashing_Deterministic(t *testing.T) {
	tk := NewHashing(128)
	opt := core.EncodeOptions{MaxLength: 3, Truncate: true}
	a, err := tk.EncodeBatch([]string{"Red Apple"}, opt)
	if err != nil {
		t.Fatalf("EncodeBatch() error = %v", err)
	}
	b, err := tk.EncodeBatch([]string{"red  apple"}, opt)
	if err != nil {
		t.Fatalf("EncodeBatch() error = %v", err)
	}
	// 大小写与多余空白不影响编码
	for j := range a.IDs[0] {
		if a.IDs[0][j] != b.IDs[0][j] {
			t.Errorf("IDs differ at %d: %d vs %d", j, a.IDs[0][j], b.IDs[0][j])
		}
	}
}
