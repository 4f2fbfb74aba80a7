package normalize

import "github.com/saludmental/cohortload/internal/model"

// Synonym sets seen across the registry exports. Keys are pre-normalized.
var riskSynonyms = map[string]model.Risk{
	"0": model.RiskLow, "bajo": model.RiskLow, "baja": model.RiskLow,
	"pos": model.RiskLow, "positivo": model.RiskLow, "low": model.RiskLow,

	"1": model.RiskModerate, "moderado": model.RiskModerate, "medio": model.RiskModerate,
	"neu": model.RiskModerate, "neutral": model.RiskModerate, "medium": model.RiskModerate,

	"2": model.RiskHigh, "alto": model.RiskHigh, "alta": model.RiskHigh,
	"neg": model.RiskHigh, "negativo": model.RiskHigh, "high": model.RiskHigh,
}

// RiskFrom maps a free-text risk value onto the fixed category set,
// case- and diacritic-insensitively. Unmapped values stay RiskUnknown;
// there is deliberately no fallback category.
func RiskFrom(s string) model.Risk {
	if r, ok := riskSynonyms[Text(s)]; ok {
		return r
	}
	return model.RiskUnknown
}
