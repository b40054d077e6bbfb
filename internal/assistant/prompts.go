package assistant

import (
	"fmt"

	"github.com/osteele/liquid"
)

const systemPrompt = `You are an expert game analytics strategist for PlayerPulse, a player telemetry intelligence platform. You analyze engagement, monetization, and retention data for mobile and live-service games.

## Your Expertise
- Player lifecycle analysis (acquisition, engagement, monetization, churn)
- Segment strategy for whales, dolphins, minnows, and free players
- Retention curve and cohort interpretation
- Funnel drop-off diagnosis
- Anomaly triage for telemetry metrics

## Response Guidelines
1. Be direct and actionable, with specific recommendations
2. Quantify impact using only the figures provided
3. Prioritize by revenue impact
4. Never invent numbers that are not in the supplied data
5. Flag low-confidence model output as such

IMPORTANT: You only see aggregated data. Never speculate about individual players.`

const insightsTemplate = `Analyze this game telemetry dataset and produce a concise insight report.

## Dataset {{ dataset_id }} ({{ from }} to {{ to }})
- Events: {{ total_events }}
- Players: {{ total_users }} ({{ paying_users }} paying)
- Revenue: ${{ revenue | money }}
{% if arppu %}- ARPPU: ${{ arppu | money }}
{% else %}- ARPPU: not available (no paying players)
{% endif %}- ARPDAU: ${{ arpdau | money }}
{% if segments %}
## Segments
{% for s in segments %}- {{ s.label }}: {{ s.users }} players, mean revenue ${{ s.mean_revenue | money }}
{% endfor %}{% endif %}{% if churn %}
## Churn Model
- High-risk players: {{ churn.high_risk_users }}
- Held-out accuracy: {{ churn.accuracy | pct }}{% if churn.low_confidence %} (LOW CONFIDENCE, treat as directional only){% endif %}
- Strongest signal: {{ churn.top_feature }}
{% endif %}{% if anomalies %}
## Flagged Anomalies
{% for a in anomalies %}- {{ a.date }}: {{ a.metric }} {{ a.direction }} at {{ a.observed }}
{% endfor %}{% endif %}
Cover: the three most important findings, the biggest revenue risk, and one concrete next action.`

const queryTemplate = `Answer the analyst's question using only the dataset context below.

## Dataset {{ dataset_id }} ({{ from }} to {{ to }})
- Events: {{ total_events }}, Players: {{ total_users }}, Paying: {{ paying_users }}
- Revenue: ${{ revenue | money }}, ARPDAU: ${{ arpdau | money }}
{% if segments %}Segments: {% for s in segments %}{{ s.label }}={{ s.users }} {% endfor %}
{% endif %}{% if churn %}High-risk players: {{ churn.high_risk_users }} (model accuracy {{ churn.accuracy | pct }})
{% endif %}
Question: {{ question }}

If the context cannot answer the question, say so instead of guessing.`

// promptBuilder renders the Liquid prompt templates over a digest.
type promptBuilder struct {
	engine   *liquid.Engine
	insights *liquid.Template
	query    *liquid.Template
}

func newPromptBuilder() (*promptBuilder, error) {
	engine := liquid.NewEngine()
	engine.RegisterFilter("money", func(v float64) string {
		return fmt.Sprintf("%.2f", v)
	})
	engine.RegisterFilter("pct", func(v float64) string {
		return fmt.Sprintf("%.1f%%", v*100)
	})

	insights, err := engine.ParseString(insightsTemplate)
	if err != nil {
		return nil, fmt.Errorf("parsing insights template: %w", err)
	}
	query, err := engine.ParseString(queryTemplate)
	if err != nil {
		return nil, fmt.Errorf("parsing query template: %w", err)
	}
	return &promptBuilder{engine: engine, insights: insights, query: query}, nil
}

func (b *promptBuilder) bindings(d Digest) map[string]interface{} {
	vars := map[string]interface{}{
		"dataset_id":   d.DatasetID,
		"from":         d.From.Format("2006-01-02"),
		"to":           d.To.Format("2006-01-02"),
		"total_events": d.TotalEvents,
		"total_users":  d.TotalUsers,
		"paying_users": d.PayingUsers,
		"revenue":      d.Revenue,
		"arpdau":       d.ARPDAU,
	}
	if d.ARPPU != nil {
		vars["arppu"] = *d.ARPPU
	}

	if len(d.Segments) > 0 {
		segments := make([]map[string]interface{}, 0, len(d.Segments))
		for _, s := range d.Segments {
			segments = append(segments, map[string]interface{}{
				"label":        s.Label,
				"users":        s.Users,
				"mean_revenue": s.MeanRevenue,
			})
		}
		vars["segments"] = segments
	}
	if d.Churn != nil {
		vars["churn"] = map[string]interface{}{
			"high_risk_users": d.Churn.HighRiskUsers,
			"accuracy":        d.Churn.Accuracy,
			"low_confidence":  d.Churn.LowConfidence,
			"top_feature":     d.Churn.TopFeature,
		}
	}
	if len(d.Anomaly) > 0 {
		anomalies := make([]map[string]interface{}, 0, len(d.Anomaly))
		for _, a := range d.Anomaly {
			anomalies = append(anomalies, map[string]interface{}{
				"date":      a.Date.Format("2006-01-02"),
				"metric":    a.Metric,
				"observed":  a.Observed,
				"direction": a.Direction,
			})
		}
		vars["anomalies"] = anomalies
	}
	return vars
}

func (b *promptBuilder) insightsPrompt(d Digest) (string, error) {
	out, err := b.insights.Render(b.bindings(d))
	if err != nil {
		return "", fmt.Errorf("rendering insights prompt: %w", err)
	}
	return string(out), nil
}

func (b *promptBuilder) queryPrompt(d Digest, question string) (string, error) {
	vars := b.bindings(d)
	vars["question"] = question
	out, err := b.query.Render(vars)
	if err != nil {
		return "", fmt.Errorf("rendering query prompt: %w", err)
	}
	return string(out), nil
}
