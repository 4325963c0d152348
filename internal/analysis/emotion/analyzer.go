package emotion

import "math"

// Label 表示分类模型输出的情绪标签。
type Label string

const (
	Joy         Label = "기쁨"
	Flutter     Label = "설렘"
	Ordinary    Label = "평범함"
	Displeasure Label = "불쾌함"
	Sadness     Label = "슬픔"
	Surprise    Label = "놀라움"
	Fear        Label = "두려움"
	Anger       Label = "분노"
)

// labelScores 将情绪标签映射到 [0,5] 的情绪刻度。
var labelScores = map[Label]float64{
	Joy:         5,
	Flutter:     4,
	Ordinary:    3,
	Displeasure: 2,
	Sadness:     2,
	Surprise:    1,
	Fear:        0,
	Anger:       0,
}

// weatherByScore 将取整后的分数映射为"今日天气"描述。
var weatherByScore = [6]string{
	"토네이도", // 0
	"번개",   // 1
	"비",    // 2
	"구름",   // 3
	"맑음",   // 4
	"최고",   // 5
}

// Analysis 是单条话语的分类结果。
type Analysis struct {
	Label         Label
	Probabilities map[Label]float64 // 百分比，保留两位小数
	Score         float64           // [0,5] 刻度值
}

// Result 是整段对话聚合后的结果。
type Result struct {
	Score float64 // [0,5]，保留两位小数
	Label string  // 天气描述
}

// ScoreForLabel 返回标签对应的刻度值，未知标签按 3 处理。
func ScoreForLabel(label Label) float64 {
	score, ok := labelScores[label]
	if !ok {
		return 3
	}
	return Clamp(score)
}

// WeatherForScore 将 [0,5] 分数取整后映射为天气描述。
func WeatherForScore(score float64) string {
	s := int(math.Round(score))
	if s < 0 {
		s = 0
	}
	if s > 5 {
		s = 5
	}
	return weatherByScore[s]
}

// Clamp 将分数裁剪到 [0,5]。
func Clamp(x float64) float64 {
	return math.Max(0, math.Min(5, x))
}

// Round2 保留两位小数。
func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// Softmax 将 logits 归一化为概率分布。
func Softmax(logits []float64) []float64 {
	if len(logits) == 0 {
		return nil
	}
	max := logits[0]
	for _, v := range logits[1:] {
		if v > max {
			max = v
		}
	}
	var sum float64
	probs := make([]float64, len(logits))
	for i, v := range logits {
		probs[i] = math.Exp(v - max)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

// Aggregate 对整段对话的刻度值求平均，并映射为天气描述。
// 输入为空时返回 ok=false，表示没有可分析的内容。
func Aggregate(scores []float64) (Result, bool) {
	if len(scores) == 0 {
		return Result{}, false
	}
	var total float64
	for _, s := range scores {
		total += Clamp(s)
	}
	final := Round2(Clamp(total / float64(len(scores))))
	return Result{Score: final, Label: WeatherForScore(final)}, true
}
