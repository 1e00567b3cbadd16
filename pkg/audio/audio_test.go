package audio

import (
	"context"
	"errors"
	"io"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/matryer/is"
)

func filledFrame(v int16) Frame {
	f := make(Frame, FrameLength)
	for i := range f {
		f[i] = v
	}
	return f
}

func TestFramesIn(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want int
	}{
		{0, 0},
		{FrameDuration, 1},
		{300 * time.Millisecond, 10},
		{500 * time.Millisecond, 16},
		{4 * time.Second, 125},
		{10 * time.Second, 313},
		{20 * time.Second, 625},
		{60 * time.Second, 1875},
	}
	for _, tt := range tests {
		if got := FramesIn(tt.d); got != tt.want {
			t.Errorf("FramesIn(%v) = %d, want %d", tt.d, got, tt.want)
		}
	}
}

func TestFrame_BytesRoundTrip(t *testing.T) {
	is := is.New(t)

	f := filledFrame(-1234)
	f[7] = 32767
	got, err := NewFrame(f.Bytes())
	is.NoErr(err)
	is.Equal(got, f)

	_, err = NewFrame(make([]byte, 10))
	is.True(err != nil) // wrong length rejected
}

func TestRMS(t *testing.T) {
	is := is.New(t)
	is.Equal(RMS(nil), 0.0)
	is.Equal(RMS(filledFrame(300)), 300.0)
	is.Equal(RMS([]int16{3, -4, 3, -4}), math.Sqrt(12.5))
}

func TestScale_Clamps(t *testing.T) {
	is := is.New(t)
	got := Scale([]int16{100, -100, 30000, -30000}, 2)
	is.Equal(got, []int16{200, -200, math.MaxInt16, math.MinInt16})
}

func TestResample(t *testing.T) {
	is := is.New(t)

	in := make([]int16, 2400) // 100 ms at 24 kHz
	for i := range in {
		in[i] = 500
	}
	out := Resample(in, 24000, 16000)
	is.Equal(len(out), 1600)
	for _, s := range out {
		is.Equal(s, int16(500))
	}

	is.Equal(Resample(in[:3], 16000, 16000), in[:3]) // same rate copies
}

func TestRollingBuffer_Capacity(t *testing.T) {
	is := is.New(t)

	b := NewRollingBuffer(3)
	for i := 0; i < 10; i++ {
		b.Append(filledFrame(int16(i)))
		is.True(b.Frames() <= 3) // never exceeds cap
	}
	is.Equal(b.Frames(), 3)

	// oldest dropped first: frames 7, 8, 9 remain
	data := DecodePCM(b.Bytes())
	is.Equal(data[0], int16(7))
	is.Equal(data[len(data)-1], int16(9))

	b.SetCapacity(1)
	is.Equal(b.Capacity(), 1)
	is.Equal(b.Frames(), 1)
	is.Equal(DecodePCM(b.Bytes())[0], int16(9))
}

func TestRollingBuffer_KeepTail(t *testing.T) {
	tests := []struct {
		name   string
		frames int
		keep   int
		want   int
	}{
		{"shorter than tail", 2, 4, 2},
		{"trim to tail", 10, 4, 4},
		{"keep one", 10, 1, 1},
		{"drop all", 10, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewRollingBuffer(100)
			for i := 0; i < tt.frames; i++ {
				b.Append(filledFrame(int16(i)))
			}
			b.KeepTail(tt.keep)
			if b.Frames() != tt.want {
				t.Errorf("Frames() = %d, want %d", b.Frames(), tt.want)
			}
			if tt.want > 0 {
				data := DecodePCM(b.Bytes())
				if last := data[len(data)-1]; last != int16(tt.frames-1) {
					t.Errorf("last sample = %d, want %d", last, tt.frames-1)
				}
			}
		})
	}
}

func TestRollingBuffer_BytesIsCopy(t *testing.T) {
	is := is.New(t)
	b := NewRollingBuffer(2)
	b.Append(filledFrame(1))
	out := b.Bytes()
	out[0] = 99
	is.Equal(b.Bytes()[0], byte(1))
}

func TestSimilarity(t *testing.T) {
	is := is.New(t)

	tone := make([]int16, 4*FrameLength)
	noise := make([]int16, 4*FrameLength)
	seed := uint32(1)
	for i := range tone {
		tone[i] = int16(8000 * math.Sin(2*math.Pi*440*float64(i)/SampleRate))
		seed = seed*1664525 + 1013904223
		noise[i] = int16(seed >> 20)
	}

	is.True(math.Abs(Similarity(tone, tone)-1) < 1e-9) // identical signals
	is.True(Similarity(tone, noise) < Similarity(tone, tone))
}

func sine(hz, amp float64, n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(amp * math.Sin(2*math.Pi*hz*float64(i)/SampleRate))
	}
	return out
}

func TestMeanMFCC(t *testing.T) {
	is := is.New(t)

	low := sine(300, 8000, 3*FrameLength)
	high := sine(3000, 8000, 3*FrameLength)
	quieter := sine(300, 4000, 3*FrameLength)

	is.Equal(len(MeanMFCC(low)), mfccCoeffs)
	is.Equal(len(MeanMFCC(nil)), mfccCoeffs) // zero-padded single window
	is.True(Similarity(low, quieter) > Similarity(low, high))

	// pooled transforms give the same answer from many goroutines
	want := MeanMFCC(high)
	var wg sync.WaitGroup
	results := make([][]float64, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = MeanMFCC(high)
		}(i)
	}
	wg.Wait()
	for _, got := range results {
		is.Equal(got, want)
	}
}

func TestCosineSimilarity_Degenerate(t *testing.T) {
	is := is.New(t)
	is.Equal(CosineSimilarity([]float64{1, 2}, []float64{1}), 0.0)
	is.Equal(CosineSimilarity([]float64{0, 0}, []float64{1, 1}), 0.0)
	is.Equal(CosineSimilarity(nil, nil), 0.0)
}

func TestSliceSource(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	src := NewSliceSource(make([]int16, FrameLength+10), false)
	_, err := src.Read(ctx)
	is.True(errors.Is(err, ErrNotStarted))

	is.NoErr(src.Start())
	f1, err := src.Read(ctx)
	is.NoErr(err)
	is.Equal(len(f1), FrameLength)

	f2, err := src.Read(ctx)
	is.NoErr(err)
	is.Equal(len(f2), FrameLength) // partial frame padded

	_, err = src.Read(ctx)
	is.Equal(err, io.EOF)
	is.NoErr(src.Close())
}

func TestFramesFrom(t *testing.T) {
	is := is.New(t)
	is.Equal(len(FramesFrom(make([]int16, 3*FrameLength))), 3)
	is.Equal(len(FramesFrom(make([]int16, 3*FrameLength+1))), 4)
	is.Equal(len(FramesFrom(nil)), 0)
}
