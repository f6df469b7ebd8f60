package memory

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"
)

func TestKeywordClassifier(t *testing.T) {
	t.Parallel()

	c := NewKeywordClassifier()
	tests := []struct {
		input string
		want  []string
	}{
		{"what time is it?", []string{"time", "question"}},
		{"will it rain tomorrow", []string{"weather"}},
		{"hello there", []string{"greeting"}},
		{"play some music", []string{"music"}},
		{"remind me about my appointment", []string{"reminder"}},
		{"", nil},
		{"unrelated text", nil},
	}
	for _, tc := range tests {
		got := c.Classify(tc.input)
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("Classify(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}

func TestObserve_IncrementsMatchedTopicsOnly(t *testing.T) {
	t.Parallel()

	pl := NewPatternLearner(newTestStore(t), nil, nil)
	pl.now = func() time.Time { return time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	if err := pl.Observe(ctx, "u1", "what time is it?", KindVoice); err != nil {
		t.Fatalf("Observe: %v", err)
	}

	for _, topic := range []string{"time", "question"} {
		p, err := pl.Topic(ctx, "u1", topic)
		if err != nil {
			t.Fatalf("Topic(%s): %v", topic, err)
		}
		if p.Frequency != 1 {
			t.Errorf("%s frequency = %d, want 1", topic, p.Frequency)
		}
		if math.Abs(p.Confidence-0.5) > 1e-6 {
			t.Errorf("%s confidence = %f, want 0.5", topic, p.Confidence)
		}
	}

	if _, err := pl.Topic(ctx, "u1", "weather"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Topic(weather) error = %v, want ErrNotFound", err)
	}

	types, err := pl.Histogram(ctx, "u1", PatternConversationTypes, "types")
	if err != nil {
		t.Fatalf("Histogram(types): %v", err)
	}
	if types[KindVoice] != 1 {
		t.Errorf("voice type count = %d, want 1", types[KindVoice])
	}

	hours, err := pl.Histogram(ctx, "u1", PatternActiveHours, "hours")
	if err != nil {
		t.Fatalf("Histogram(hours): %v", err)
	}
	if hours["14"] != 1 {
		t.Errorf("hour 14 count = %d, want 1", hours["14"])
	}
}

func TestObserve_ConfidenceGrowsAndCaps(t *testing.T) {
	t.Parallel()

	pl := NewPatternLearner(newTestStore(t), nil, nil)
	ctx := context.Background()

	const hits = 8
	for i := 0; i < hits; i++ {
		if err := pl.Observe(ctx, "u1", "play music", KindText); err != nil {
			t.Fatalf("Observe %d: %v", i, err)
		}
	}

	p, err := pl.Topic(ctx, "u1", "music")
	if err != nil {
		t.Fatalf("Topic(music): %v", err)
	}
	if p.Frequency != hits {
		t.Errorf("frequency = %d, want %d", p.Frequency, hits)
	}
	// 0.5 + 7 increments of 0.1 exceeds the 1.0 cap.
	if math.Abs(p.Confidence-1.0) > 1e-6 {
		t.Errorf("confidence = %f, want capped at 1.0", p.Confidence)
	}
}

func TestObserve_HistogramAccumulates(t *testing.T) {
	t.Parallel()

	pl := NewPatternLearner(newTestStore(t), nil, nil)
	ctx := context.Background()

	for _, kind := range []string{KindVoice, KindVoice, KindText} {
		if err := pl.Observe(ctx, "u1", "unrelated", kind); err != nil {
			t.Fatalf("Observe: %v", err)
		}
	}

	types, err := pl.Histogram(ctx, "u1", PatternConversationTypes, "types")
	if err != nil {
		t.Fatalf("Histogram: %v", err)
	}
	if types[KindVoice] != 2 || types[KindText] != 1 {
		t.Errorf("types = %v, want voice:2 text:1", types)
	}
}

func TestHistogram_AbsentReturnsEmpty(t *testing.T) {
	t.Parallel()

	pl := NewPatternLearner(newTestStore(t), nil, nil)
	hours, err := pl.Histogram(context.Background(), "nobody", PatternActiveHours, "hours")
	if err != nil {
		t.Fatalf("Histogram: %v", err)
	}
	if len(hours) != 0 {
		t.Errorf("hours = %v, want empty", hours)
	}
}

func TestTopTopics_OrderedByFrequency(t *testing.T) {
	t.Parallel()

	pl := NewPatternLearner(newTestStore(t), nil, nil)
	ctx := context.Background()

	inputs := []string{"play music", "play music", "what is the weather"}
	for _, in := range inputs {
		if err := pl.Observe(ctx, "u1", in, KindText); err != nil {
			t.Fatalf("Observe(%q): %v", in, err)
		}
	}

	top, err := pl.TopTopics(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("TopTopics: %v", err)
	}
	if len(top) == 0 || top[0].Name != "music" {
		t.Errorf("top topic = %+v, want music first", top)
	}
	for i := 1; i < len(top); i++ {
		if top[i-1].Frequency < top[i].Frequency {
			t.Errorf("topics out of frequency order at %d", i)
		}
	}
}
