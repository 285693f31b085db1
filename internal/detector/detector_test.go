package detector

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

func TestMockDetector(t *testing.T) {
	t.Run("returns empty hands by default", func(t *testing.T) {
		mock := NewMockDetector()

		hands, err := mock.Detect(nil)

		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if hands != nil {
			t.Errorf("expected nil hands, got %v", hands)
		}
	})

	t.Run("returns configured hands", func(t *testing.T) {
		mock := NewMockDetector()

		expectedHands := []HandLandmarks{
			ThumbsUpLandmarks(),
			OpenPalmLandmarks(),
		}
		mock.SetHands(expectedHands)

		hands, err := mock.Detect(nil)

		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if len(hands) != 2 {
			t.Errorf("expected 2 hands, got %d", len(hands))
		}
	})

	t.Run("returns configured error", func(t *testing.T) {
		mock := NewMockDetector()

		expectedErr := errors.New("detection failed")
		mock.SetError(expectedErr)

		hands, err := mock.Detect(nil)

		if err != expectedErr {
			t.Errorf("expected error %v, got %v", expectedErr, err)
		}
		if hands != nil {
			t.Errorf("expected nil hands when error is set, got %v", hands)
		}
	})

	t.Run("Close returns nil", func(t *testing.T) {
		mock := NewMockDetector()

		err := mock.Close()

		if err != nil {
			t.Errorf("expected Close to return nil, got %v", err)
		}
	})

	t.Run("implements Detector interface", func(t *testing.T) {
		var _ Detector = (*MockDetector)(nil)
	})

	t.Run("plays sequence and repeats last entry", func(t *testing.T) {
		mock := NewMockDetector()
		mock.SetSequence([][]HandLandmarks{
			nil,
			{ThumbsUpLandmarks()},
			{ThumbsUpLandmarks(), OpenPalmLandmarks()},
		})

		wantCounts := []int{0, 1, 2, 2, 2}
		for i, want := range wantCounts {
			hands, err := mock.Detect(nil)
			if err != nil {
				t.Fatalf("call %d: unexpected error: %v", i, err)
			}
			if len(hands) != want {
				t.Errorf("call %d: expected %d hands, got %d", i, want, len(hands))
			}
		}

		if mock.Calls() != len(wantCounts) {
			t.Errorf("expected %d calls, got %d", len(wantCounts), mock.Calls())
		}
	})
}

func TestShiftedAndMirrored(t *testing.T) {
	base := OpenPalmLandmarks()

	shifted := Shifted(base, 0.01, -0.02, 0)
	if shifted.Points[Wrist].X != base.Points[Wrist].X+0.01 {
		t.Errorf("expected wrist X shifted by 0.01, got %f", shifted.Points[Wrist].X)
	}
	if base.Points[Wrist].X != 0.5 {
		t.Error("Shifted must not modify its input")
	}

	mirrored := Mirrored(base)
	if mirrored.Handedness != Left {
		t.Errorf("expected mirrored handedness Left, got %s", mirrored.Handedness)
	}
	if mirrored.Points[ThumbTip].X != 1-base.Points[ThumbTip].X {
		t.Errorf("expected mirrored thumb tip X %f, got %f", 1-base.Points[ThumbTip].X, mirrored.Points[ThumbTip].X)
	}
}

// encodeResponse frames a msgpack document the way the hands service does.
func encodeResponse(t *testing.T, doc any) *bytes.Reader {
	t.Helper()
	body, err := msgpack.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var buf bytes.Buffer
	if err := writeFrame(&buf, body); err != nil {
		t.Fatal(err)
	}
	return bytes.NewReader(buf.Bytes())
}

func TestReadResponse(t *testing.T) {
	t.Run("decodes hands", func(t *testing.T) {
		points := make([][]float64, NumLandmarks)
		for i := range points {
			points[i] = []float64{float64(i) / 100, 0.5, -0.01}
		}
		doc := map[string]any{
			"hands": []map[string]any{
				{"points": points, "handedness": "Left", "score": 0.87},
			},
		}

		hands, err := readResponse(encodeResponse(t, doc))
		if err != nil {
			t.Fatalf("readResponse() error = %v", err)
		}
		if len(hands) != 1 {
			t.Fatalf("expected 1 hand, got %d", len(hands))
		}
		if hands[0].Handedness != Left {
			t.Errorf("expected handedness Left, got %s", hands[0].Handedness)
		}
		if hands[0].Points[PinkyTip].X != 0.2 {
			t.Errorf("expected pinky tip X 0.2, got %f", hands[0].Points[PinkyTip].X)
		}
	})

	t.Run("no hands", func(t *testing.T) {
		hands, err := readResponse(encodeResponse(t, map[string]any{"hands": []any{}}))
		if err != nil {
			t.Fatalf("readResponse() error = %v", err)
		}
		if len(hands) != 0 {
			t.Errorf("expected no hands, got %d", len(hands))
		}
	})

	t.Run("rejects short hand", func(t *testing.T) {
		doc := map[string]any{
			"hands": []map[string]any{
				{"points": [][]float64{{0, 0, 0}}, "handedness": "Right", "score": 0.9},
			},
		}

		_, err := readResponse(encodeResponse(t, doc))
		if !errors.Is(err, ErrMalformedResponse) {
			t.Errorf("expected ErrMalformedResponse, got %v", err)
		}
	})

	t.Run("rejects two-coordinate point", func(t *testing.T) {
		points := make([][]float64, NumLandmarks)
		for i := range points {
			points[i] = []float64{0.1, 0.2, 0.3}
		}
		points[4] = []float64{0.1, 0.2}
		doc := map[string]any{
			"hands": []map[string]any{{"points": points}},
		}

		_, err := readResponse(encodeResponse(t, doc))
		if !errors.Is(err, ErrMalformedResponse) {
			t.Errorf("expected ErrMalformedResponse, got %v", err)
		}
	})

	t.Run("truncated stream", func(t *testing.T) {
		_, err := readResponse(bytes.NewReader([]byte{0, 0, 0, 9, 1}))
		if err == nil {
			t.Error("expected error for truncated response")
		}
	})
}

func TestHandLandmarks_Coords(t *testing.T) {
	h := ThumbsUpLandmarks()
	c := h.Coords()

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"wrist x", c[Wrist*3], 0.5},
		{"wrist y", c[Wrist*3+1], 0.8},
		{"thumb tip y", c[ThumbTip*3+1], 0.35},
		{"index pip z", c[IndexPIP*3+2], -0.05},
		{"pinky tip x", c[PinkyTip*3], 0.35},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestHandLandmarks_NonFinite(t *testing.T) {
	h := OpenPalmLandmarks()
	if i := h.NonFinite(); i != -1 {
		t.Errorf("NonFinite() = %d on a clean hand", i)
	}

	h.Points[MiddleDIP].Z = math.Inf(1)
	h.Points[RingTip].X = math.NaN()
	if i := h.NonFinite(); i != MiddleDIP {
		t.Errorf("NonFinite() = %d, want %d", i, MiddleDIP)
	}
}

func TestParsePoints(t *testing.T) {
	valid := make([][]float64, NumLandmarks)
	for i := range valid {
		valid[i] = []float64{float64(i), 0.5, -0.1}
	}

	points, err := ParsePoints(valid)
	if err != nil {
		t.Fatalf("ParsePoints() error = %v", err)
	}
	if points[PinkyTip] != (Point3D{X: 20, Y: 0.5, Z: -0.1}) {
		t.Errorf("PinkyTip = %+v", points[PinkyTip])
	}

	short := valid[:NumLandmarks-1]
	if _, err := ParsePoints(short); err == nil {
		t.Error("expected an error for 20 points")
	}

	flat := append([][]float64{}, valid...)
	flat[3] = []float64{0.1, 0.2}
	if _, err := ParsePoints(flat); err == nil {
		t.Error("expected an error for a two-coordinate point")
	}
}

// The pose fixtures train the classifier in tests, so they must stay far
// apart compared to the jitter applied to them.
func TestPoseFixturesAreSeparable(t *testing.T) {
	dist := func(a, b HandLandmarks) float64 {
		ca, cb := a.Coords(), b.Coords()
		var sum float64
		for i := range ca {
			d := ca[i] - cb[i]
			sum += d * d
		}
		return math.Sqrt(sum)
	}

	thumbs, palm, point := ThumbsUpLandmarks(), OpenPalmLandmarks(), PointingLandmarks()
	jitter := dist(thumbs, Shifted(thumbs, 0.004, 0, 0))
	for _, pair := range [][2]HandLandmarks{{thumbs, palm}, {thumbs, point}, {palm, point}} {
		if apart := dist(pair[0], pair[1]); apart < 10*jitter {
			t.Errorf("fixtures %.4f apart, jitter %.4f", apart, jitter)
		}
	}
	if thumbs.Handedness != Right || palm.Handedness != Right {
		t.Error("fixtures should be right hands")
	}
	if thumbs.Points[ThumbTip].Y >= thumbs.Points[IndexTip].Y {
		t.Error("thumbs up should have the thumb above the curled index finger")
	}
	if palm.Points[MiddleTip].Y >= palm.Points[MiddleMCP].Y {
		t.Error("open palm should have the middle finger extended")
	}
}
