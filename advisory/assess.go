package advisory

import (
	"gonum.org/v1/gonum/stat"

	"rig-vibration/vibration"
)

// Severity is the status colour of one metric.
type Severity string

const (
	Safe    Severity = "safe"
	Warning Severity = "warning"
	Danger  Severity = "danger"
)

// RiskBand classifies the aggregate risk score.
type RiskBand string

const (
	RiskLow      RiskBand = "LOW"
	RiskModerate RiskBand = "MODERATE"
	RiskCritical RiskBand = "CRITICAL"
)

// MetricAssessment is a predicted value with its status colour. Severity
// is empty for metrics without a status threshold.
type MetricAssessment struct {
	vibration.MetricValue
	Severity Severity `json:"severity,omitempty"`
}

// Advisory is a triggered piece of operator guidance.
type Advisory struct {
	Metric   string `json:"metric,omitempty"`
	Message  string `json:"message"`
	Critical bool   `json:"critical,omitempty"`
}

// Assessment is everything the dashboard renders next to a prediction.
type Assessment struct {
	Metrics    []MetricAssessment `json:"metrics"`
	Advisories []Advisory         `json:"advisories"`
	Ideal      bool               `json:"ideal"`
	RiskScore  float64            `json:"riskScore"`
	RiskBand   RiskBand           `json:"riskBand"`
}

// Classify maps a value onto the status table. The safe boundary is
// exclusive: a value equal to SafeBelow is already a warning.
func Classify(value float64, t StatusThreshold) Severity {
	switch {
	case value < t.SafeBelow:
		return Safe
	case value < t.WarningBelow:
		return Warning
	default:
		return Danger
	}
}

// Band maps a risk score onto the configured bands.
func (b RiskBands) Band(score float64) RiskBand {
	switch {
	case score < b.LowBelow:
		return RiskLow
	case score < b.ModerateBelow:
		return RiskModerate
	default:
		return RiskCritical
	}
}

// Assess classifies every metric, evaluates the advisory rules and
// aggregates risk as the mean of value/safe_below over the metrics that
// have a status threshold.
func Assess(result vibration.PredictionResult, cfg Config) Assessment {
	assessment := Assessment{
		Metrics:    make([]MetricAssessment, 0, len(result.Values)),
		Advisories: []Advisory{},
	}

	var ratios []float64
	for _, mv := range result.Values {
		ma := MetricAssessment{MetricValue: mv}
		if t, ok := cfg.status(mv.Key); ok {
			ma.Severity = Classify(mv.Value, t)
			ratios = append(ratios, mv.Value/t.SafeBelow)
		}
		assessment.Metrics = append(assessment.Metrics, ma)

		for _, rule := range cfg.Advisories {
			if rule.Metric == mv.Key && mv.Value > rule.Above {
				assessment.Advisories = append(assessment.Advisories, Advisory{
					Metric:   rule.Metric,
					Message:  rule.Message,
					Critical: rule.Critical,
				})
			}
		}
	}

	if len(assessment.Advisories) == 0 {
		assessment.Ideal = true
		assessment.Advisories = append(assessment.Advisories, Advisory{Message: cfg.IdealMessage})
	}

	if len(ratios) > 0 {
		assessment.RiskScore = stat.Mean(ratios, nil)
	}
	assessment.RiskBand = cfg.Risk.Band(assessment.RiskScore)
	return assessment
}

// Messages returns the advisory texts in order.
func (a Assessment) Messages() []string {
	out := make([]string, len(a.Advisories))
	for i, adv := range a.Advisories {
		out[i] = adv.Message
	}
	return out
}
