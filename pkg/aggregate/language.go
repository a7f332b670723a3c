package aggregate

import (
	"math"
	"strconv"
	"strings"

	"github.com/xhad/doccheck/internal/models"
)

const DefaultLanguage = "tr"

var supportedLanguages = map[string]bool{"tr": true, "en": true, "es": true, "pt": true, "fr": true, "ru": true}

var languageAliases = map[string]string{
	"tr-tr":      "tr",
	"turkish":    "tr",
	"en-us":      "en",
	"en-gb":      "en",
	"english":    "en",
	"es-es":      "es",
	"es-mx":      "es",
	"spanish":    "es",
	"pt-br":      "pt",
	"pt-pt":      "pt",
	"portuguese": "pt",
	"fr-fr":      "fr",
	"french":     "fr",
	"ru-ru":      "ru",
	"russian":    "ru",
}

var verdictLines = map[string]map[string]string{
	"tr": {
		"ai":      "İçerik büyük olasılıkla yapay zekâ tarafından üretildi ({ai}).",
		"human":   "İçerik insan üretimi gibi görünüyor ({human}).",
		"unknown": "İçeriğin kaynağını belirleyemedik.",
	},
	"en": {
		"ai":      "The content is likely AI-generated ({ai}).",
		"human":   "The content appears to be human-generated ({human}).",
		"unknown": "We could not determine whether the content is AI-generated.",
	},
	"es": {
		"ai":      "Es muy probable que el contenido haya sido generado por IA ({ai}).",
		"human":   "El contenido parece haber sido creado por una persona ({human}).",
		"unknown": "No pudimos determinar el origen del contenido.",
	},
	"pt": {
		"ai":      "O conteúdo provavelmente foi gerado por IA ({ai}).",
		"human":   "O conteúdo aparenta ter sido criado por uma pessoa ({human}).",
		"unknown": "Não foi possível determinar a origem do conteúdo.",
	},
	"fr": {
		"ai":      "Le contenu a probablement été généré par une IA ({ai}).",
		"human":   "Le contenu semble avoir été créé par un humain ({human}).",
		"unknown": "Nous n'avons pas pu déterminer l'origine du contenu.",
	},
	"ru": {
		"ai":      "Контент, вероятнее всего, создан ИИ ({ai}).",
		"human":   "Контент выглядит созданным человеком ({human}).",
		"unknown": "Не удалось определить источник контента.",
	},
}

var likelihoodLines = map[string]map[string]string{
	"tr": {"ai": "Yapay zekâ olasılığı: {ai}.", "human": "İnsan olasılığı: {human}."},
	"en": {"ai": "AI likelihood: {ai}.", "human": "Human likelihood: {human}."},
	"es": {"ai": "Probabilidad de IA: {ai}.", "human": "Probabilidad humana: {human}."},
	"pt": {"ai": "Probabilidade de IA: {ai}.", "human": "Probabilidade humana: {human}."},
	"fr": {"ai": "Probabilité d'IA : {ai}.", "human": "Probabilité humaine : {human}."},
	"ru": {"ai": "Вероятность ИИ: {ai}.", "human": "Вероятность человека: {human}."},
}

var qualityLines = map[string]map[string]string{
	"tr": {"high": "Kalite metrikleri yüksek.", "medium": "Kalite metrikleri orta seviyede.", "low": "Kalite metrikleri düşük."},
	"en": {"high": "Quality indicators look strong.", "medium": "Quality indicators are moderate.", "low": "Quality indicators appear weak."},
	"es": {"high": "Los indicadores de calidad son altos.", "medium": "Los indicadores de calidad son moderados.", "low": "Los indicadores de calidad son bajos."},
	"pt": {"high": "Os indicadores de qualidade estão altos.", "medium": "Os indicadores de qualidade são moderados.", "low": "Os indicadores de qualidade estão baixos."},
	"fr": {"high": "Les indicateurs de qualité sont élevés.", "medium": "Les indicateurs de qualité sont moyens.", "low": "Les indicateurs de qualité sont faibles."},
	"ru": {"high": "Показатели качества высокие.", "medium": "Показатели качества средние.", "low": "Показатели качества низкие."},
}

var nsfwLines = map[string]map[string]string{
	"tr": {"safe": "NSFW sinyali tespit edilmedi.", "low": "Düşük seviye NSFW riski mevcut.", "medium": "Orta seviye NSFW riski mevcut.", "high": "Yüksek seviye NSFW riski tespit edildi."},
	"en": {"safe": "No NSFW signal detected.", "low": "Low NSFW risk detected.", "medium": "Moderate NSFW risk detected.", "high": "High NSFW risk detected."},
	"es": {"safe": "No se detectaron señales NSFW.", "low": "Se detectó un riesgo NSFW bajo.", "medium": "Se detectó un riesgo NSFW moderado.", "high": "Se detectó un riesgo NSFW alto."},
	"pt": {"safe": "Nenhum sinal NSFW foi detectado.", "low": "Risco NSFW baixo detectado.", "medium": "Risco NSFW moderado detectado.", "high": "Risco NSFW alto detectado."},
	"fr": {"safe": "Aucun signal NSFW détecté.", "low": "Risque NSFW faible détecté.", "medium": "Risque NSFW modéré détecté.", "high": "Risque NSFW élevé détecté."},
	"ru": {"safe": "NSFW-сигналы не обнаружены.", "low": "Обнаружен низкий риск NSFW.", "medium": "Обнаружен средний риск NSFW.", "high": "Обнаружен высокий риск NSFW."},
}

var summaryIntros = map[string]string{
	"tr": "Doküman için AI analizi:",
	"en": "AI analysis for the document:",
	"es": "Análisis de IA para el/la documento:",
	"pt": "Análise de IA para o/la documento:",
	"fr": "Analyse IA pour document :",
	"ru": "Результат анализа ИИ для документ:",
}

var flagLevels = map[string]string{
	"very_low":  "low",
	"very-low":  "low",
	"low":       "low",
	"unlikely":  "low",
	"medium":    "medium",
	"moderate":  "medium",
	"mid":       "medium",
	"high":      "high",
	"very_high": "high",
	"very-high": "high",
	"critical":  "high",
	"nsfw":      "high",
	"likely":    "high",
}

// NormalizeLanguage maps a language code or name onto a supported language, falling back to
// the primary subtag and then to DefaultLanguage.
func NormalizeLanguage(language string) string {
	code := strings.ToLower(strings.TrimSpace(strings.ReplaceAll(language, "_", "-")))
	if code == "" {
		return DefaultLanguage
	}
	if alias, ok := languageAliases[code]; ok {
		code = alias
	}
	if primary, _, found := strings.Cut(code, "-"); found && supportedLanguages[primary] {
		code = primary
	}
	if !supportedLanguages[code] {
		return DefaultLanguage
	}
	return code
}

// Messages renders the verdict as short localized sentences: the verdict, the AI and human
// likelihoods when non-zero, then quality and nsfw lines when the signals map to a known level.
// A verdict without any analyzed words is reported as undetermined.
func Messages(v models.AggregateVerdict, language string) []string {
	lang := NormalizeLanguage(language)

	verdict := "unknown"
	var aiConf, humanConf float64
	if v.TotalWords > 0 {
		if v.AIGenerated {
			verdict = "ai"
			aiConf = v.Confidence
			humanConf = math.Max(0, 1-aiConf)
		} else {
			verdict = "human"
			humanConf = v.Confidence
			aiConf = math.Max(0, 1-humanConf)
		}
	}
	ai := strconv.Itoa(pct(aiConf)) + "%"
	human := strconv.Itoa(pct(humanConf)) + "%"
	fill := strings.NewReplacer("{ai}", ai, "{human}", human)

	messages := []string{fill.Replace(translate(verdictLines, lang, verdict))}
	if pct(aiConf) > 0 {
		messages = append(messages, fill.Replace(translate(likelihoodLines, lang, "ai")))
	}
	if pct(humanConf) > 0 {
		messages = append(messages, fill.Replace(translate(likelihoodLines, lang, "human")))
	}
	if flag := qualityFlag(v.Quality); flag != "" {
		messages = append(messages, translate(qualityLines, lang, flag))
	}
	if flag := nsfwFlag(v.NSFW); flag != "" {
		messages = append(messages, translate(nsfwLines, lang, flag))
	}
	return messages
}

// Summary joins the localized intro with the messages.
func Summary(messages []string, language string) string {
	lang := NormalizeLanguage(language)
	if len(messages) == 0 {
		messages = []string{translate(verdictLines, lang, "unknown")}
	}
	return summaryIntros[lang] + " " + strings.Join(messages, " ")
}

func qualityFlag(quality string) string {
	return flagLevels[strings.ToLower(quality)]
}

func nsfwFlag(nsfw string) string {
	switch strings.ToLower(nsfw) {
	case NSFWAbsent, "safe":
		return "safe"
	case NSFWPresent:
		return "high"
	}
	return flagLevels[strings.ToLower(nsfw)]
}

func translate(table map[string]map[string]string, lang, key string) string {
	if line, ok := table[lang][key]; ok {
		return line
	}
	return table[DefaultLanguage][key]
}

func pct(v float64) int {
	p := int(math.RoundToEven(v * 100))
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
