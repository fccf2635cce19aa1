package questions

import (
	"fmt"
	"strings"
)

// countWords spells out the requested question count in each supported
// language; models follow an explicit word more reliably than a numeral.
var countWords = map[int]map[string]string{
	2: {"english": "TWO", "latvian": "DIVUS", "spanish": "DOS", "russian": "ДВА"},
	3: {"english": "THREE", "latvian": "TRĪS", "spanish": "TRES", "russian": "ТРИ"},
	4: {"english": "FOUR", "latvian": "ČETRUS", "spanish": "CUATRO", "russian": "ЧЕТЫРЕ"},
	5: {"english": "FIVE", "latvian": "PIECUS", "spanish": "CINCO", "russian": "ПЯТЬ"},
}

func countWord(n int, lang string) string {
	if words, ok := countWords[n]; ok {
		if w, ok := words[lang]; ok {
			return w
		}
	}
	return countWords[3]["english"]
}

func difficultyHint(difficulty string) string {
	switch strings.ToLower(difficulty) {
	case "easy", "simpler":
		return "\nMake questions VERY simple (max 12 words) and focus on literal recall. " +
			"Use vocabulary suitable for early readers."
	case "challenge", "hard":
		return "\nAsk deeper inferential questions that require explaining reasons, feelings, or lessons."
	default:
		return ""
	}
}

// systemMessage builds the per-language instruction forcing a JSON array of
// exactly n question strings: no answers, no objects, no markdown fences.
func systemMessage(language string, previous []string, difficulty string, n int) string {
	lang := strings.ToLower(language)
	word := countWord(n, lang)
	hint := difficultyHint(difficulty)
	prev := strings.Join(previous, "; ")

	switch lang {
	case "latvian":
		return fmt.Sprintf(
			"Tu esi draudzīgs skolotājs, kurš ģenerē %s īsus jautājumus bērniem.\n"+
				"Tev JĀATBILST ar TIEŠI derīgu JSON masīvu no %d virkņu elementiem.\n"+
				"KATRS elements ir TIKAI jautājuma teksts.\n"+
				"NELIEC atbildes.\n"+
				"NELIETO objektus ar atslēgām, piemēram, 'question' vai 'answer'.\n"+
				"NELIEC papildu tekstu, komentārus vai markdown.\n"+
				"Izmanto derīgu JSON ar dubultajām pēdiņām ap katru virkni.\n"+
				"Jautājumi jāuzdod TIKAI latviešu valodā.\n"+
				"Pārliecinies, ka jautājumi nav pārāk līdzīgi iepriekšējiem jautājumiem: %s.%s",
			word, n, prev, hint)
	case "spanish":
		return fmt.Sprintf(
			"Eres un maestro amigable que genera %s preguntas cortas para niños.\n"+
				"DEBES responder con EXACTAMENTE un array JSON válido de %d cadenas.\n"+
				"Cada elemento DEBE ser SOLO el texto de la pregunta.\n"+
				"NO incluyas respuestas.\n"+
				"NO uses objetos con claves como 'question' o 'answer'.\n"+
				"NO añadas texto adicional, comentarios ni markdown.\n"+
				"Usa JSON válido con comillas dobles alrededor de cada cadena.\n"+
				"Genera las preguntas SOLO en español.\n"+
				"Asegúrate de que las preguntas no sean demasiado similares a las preguntas anteriores: %s.%s",
			word, n, prev, hint)
	case "russian":
		return fmt.Sprintf(
			"Ты дружелюбный учитель, который генерирует %s коротких вопроса для детей.\n"+
				"ТЫ ДОЛЖЕН ответить СТРОГО в виде корректного JSON-массива из %d строк.\n"+
				"Каждый элемент ДОЛЖЕН быть ТОЛЬКО текстом вопроса.\n"+
				"НЕ добавляй ответы.\n"+
				"НЕ используй объекты с ключами вроде 'question' или 'answer'.\n"+
				"НЕ добавляй лишний текст, комментарии или markdown.\n"+
				"Используй корректный JSON с двойными кавычками вокруг всех строк.\n"+
				"Генерируй вопросы ТОЛЬКО на русском языке.\n"+
				"Убедись, что вопросы не слишком похожи на предыдущие вопросы: %s.%s",
			word, n, prev, hint)
	default:
		return fmt.Sprintf(
			"You are a friendly teacher generating %s short questions for children.\n"+
				"You MUST respond with EXACTLY a valid JSON array of %d strings.\n"+
				"Each element MUST be ONLY the question text.\n"+
				"Do NOT include answers.\n"+
				"Do NOT include objects with keys like 'question' or 'answer'.\n"+
				"Do NOT include any extra text, comments, or markdown fences.\n"+
				"Use valid JSON with double quotes around all strings.\n"+
				"Generate questions ONLY in English.\n"+
				"Make sure the questions are not too similar to previous questions: %s.%s",
			word, n, prev, hint)
	}
}

// batchSystemMessage instructs the model to answer for several labeled
// fragments at once with a JSON object keyed by fragment index.
func batchSystemMessage(language string, quotas []int) string {
	var b strings.Builder
	b.WriteString("You are a friendly teacher generating short reading-comprehension questions for children.\n")
	b.WriteString("You will receive several numbered text fragments. For EACH fragment, generate the requested number of questions.\n")
	fmt.Fprintf(&b, "Write every question in %s.\n\n", language)
	b.WriteString("You MUST respond with EXACTLY one valid JSON object.\n")
	b.WriteString("Keys are the fragment numbers as strings; values are arrays of question strings.\n")
	b.WriteString("Example shape:\n")
	b.WriteString("{\"0\": [\"first question\", \"second question\"], \"1\": [\"another question\"]}\n\n")
	b.WriteString("Do NOT include answers, extra keys, comments, or markdown fences.\n")
	b.WriteString("Question counts per fragment:\n")
	for i, q := range quotas {
		fmt.Fprintf(&b, "- Fragment %d: %d questions\n", i, q)
	}
	return b.String()
}
