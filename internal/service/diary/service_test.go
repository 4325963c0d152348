package diary

import (
	"context"
	"errors"
	"testing"
	"time"

	analysis "github.com/limyeri/howru-backend/internal/analysis/emotion"
	"github.com/limyeri/howru-backend/internal/model/chat"
	diarymodel "github.com/limyeri/howru-backend/internal/model/diary"
	emotionservice "github.com/limyeri/howru-backend/internal/service/emotion"
)

const testConvID = "507f1f77bcf86cd799439011"

// fakeHistory 预置窗口与全量历史。
type fakeHistory struct {
	windowed    []chat.Message
	all         []chat.Message
	windowStart time.Time
	windowEnd   time.Time
}

func (f *fakeHistory) Append(_ context.Context, _ chat.Message) error { return nil }

func (f *fakeHistory) Recent(_ context.Context, _ int64, _ string, _ int) ([]chat.Message, error) {
	return f.all, nil
}

func (f *fakeHistory) Window(_ context.Context, _ int64, _ string, start, end time.Time) ([]chat.Message, error) {
	f.windowStart = start
	f.windowEnd = end
	return f.windowed, nil
}

// fakeRecords 记录 upsert 调用。
type fakeRecords struct {
	summaryDate  string
	summaryText  string
	scoreDate    string
	score        float64
	label        string
	summaryCalls int
	scoreCalls   int
}

func (f *fakeRecords) FindByUserAndDate(_ context.Context, _ int64, _ string) (*diarymodel.EmotionRecord, error) {
	return nil, nil
}

func (f *fakeRecords) UpsertSummary(_ context.Context, _ int64, date string, summary string, _ time.Time) error {
	f.summaryCalls++
	f.summaryDate = date
	f.summaryText = summary
	return nil
}

func (f *fakeRecords) UpsertScore(_ context.Context, _ int64, date string, score float64, label string, _ time.Time) error {
	f.scoreCalls++
	f.scoreDate = date
	f.score = score
	f.label = label
	return nil
}

// fakeSummarizer 返回固定的日记文本。
type fakeSummarizer struct {
	text    string
	history []chat.Message
}

func (f *fakeSummarizer) Summarize(_ context.Context, history []chat.Message) (string, error) {
	f.history = history
	return f.text, nil
}

// fixedClassifier 对所有话语返回同一刻度值。
type fixedClassifier struct {
	score float64
}

func (f *fixedClassifier) Classify(_ context.Context, _ string) (analysis.Analysis, error) {
	return analysis.Analysis{Score: f.score}, nil
}

func seoul(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

func TestSummarizeUsesCivilDayWindow(t *testing.T) {
	loc := seoul(t)
	hist := &fakeHistory{windowed: []chat.Message{
		{Role: chat.RoleUser, Content: "오늘 산책했어"},
	}}
	records := &fakeRecords{}
	summarizer := &fakeSummarizer{text: "오늘은 산책을 했다."}
	svc := NewService(summarizer, hist, records, nil, loc)

	got, err := svc.Summarize(context.Background(), 42, testConvID, 2024, 5, 1)
	if err != nil {
		t.Fatalf("Summarize err: %v", err)
	}
	if got != "오늘은 산책을 했다." {
		t.Fatalf("summary = %q", got)
	}

	wantStart := time.Date(2024, 5, 1, 0, 0, 0, 0, loc)
	if !hist.windowStart.Equal(wantStart) {
		t.Fatalf("window start = %v, want %v", hist.windowStart, wantStart)
	}
	if !hist.windowEnd.Equal(wantStart.AddDate(0, 0, 1)) {
		t.Fatalf("window end = %v", hist.windowEnd)
	}

	if records.summaryCalls != 1 || records.scoreCalls != 0 {
		t.Fatalf("calls: summary=%d score=%d", records.summaryCalls, records.scoreCalls)
	}
	if records.summaryDate != "2024-05-01" {
		t.Fatalf("summary date = %s", records.summaryDate)
	}
	if len(summarizer.history) != 1 {
		t.Fatalf("summarizer history = %d messages", len(summarizer.history))
	}
}

func TestSummarizeRejectsInvalidDate(t *testing.T) {
	records := &fakeRecords{}
	svc := NewService(&fakeSummarizer{}, &fakeHistory{}, records, nil, seoul(t))

	for name, date := range map[string][3]int{
		"month 13":    {2024, 13, 1},
		"february 31": {2024, 2, 31}, // time.Date 会归一化成 3月2日
		"june 31":     {2024, 6, 31},
	} {
		_, err := svc.Summarize(context.Background(), 1, testConvID, date[0], date[1], date[2])
		if !errors.Is(err, ErrInvalidDate) {
			t.Fatalf("%s: err = %v", name, err)
		}
	}
	if records.summaryCalls != 0 {
		t.Fatalf("summaryCalls = %d", records.summaryCalls)
	}
}

func TestAnalyzeStoresTodayScore(t *testing.T) {
	loc := seoul(t)
	hist := &fakeHistory{all: []chat.Message{
		{Role: chat.RoleUser, Content: "행복한 하루였다"},
		{Role: chat.RoleAssistant, Content: "듣기 좋네요!"},
	}}
	records := &fakeRecords{}
	emotionSvc := emotionservice.NewService(&fixedClassifier{score: 5})
	svc := NewService(&fakeSummarizer{}, hist, records, emotionSvc, loc)

	result, ok, err := svc.Analyze(context.Background(), 42, testConvID)
	if err != nil {
		t.Fatalf("Analyze err: %v", err)
	}
	if !ok {
		t.Fatal("expected analysis result")
	}
	if result.Score != 5.0 || result.Label != "최고" {
		t.Fatalf("result = %+v", result)
	}

	if records.scoreCalls != 1 || records.summaryCalls != 0 {
		t.Fatalf("calls: score=%d summary=%d", records.scoreCalls, records.summaryCalls)
	}
	if want := time.Now().In(loc).Format("2006-01-02"); records.scoreDate != want {
		t.Fatalf("score date = %s, want %s", records.scoreDate, want)
	}
	if records.score != 5.0 || records.label != "최고" {
		t.Fatalf("stored score=%v label=%s", records.score, records.label)
	}
}

func TestAnalyzeNoUserUtterances(t *testing.T) {
	hist := &fakeHistory{all: []chat.Message{
		{Role: chat.RoleAssistant, Content: "안녕하세요"},
	}}
	records := &fakeRecords{}
	emotionSvc := emotionservice.NewService(&fixedClassifier{score: 3})
	svc := NewService(&fakeSummarizer{}, hist, records, emotionSvc, seoul(t))

	_, ok, err := svc.Analyze(context.Background(), 1, testConvID)
	if err != nil {
		t.Fatalf("Analyze err: %v", err)
	}
	if ok {
		t.Fatal("expected no-data result")
	}
	if records.scoreCalls != 0 {
		t.Fatal("no record should be written without utterances")
	}
}
