package verdict

import (
	"bytes"
	"text/template"
)

var promptTemplate = template.Must(template.New("audit").Parse(`You are auditing answers stored in a support knowledge base.
Decide whether the agent's response is wrong for the user's query.

Query: {{printf "%q" .Query}}
Response: {{printf "%q" .Response}}

Look for technical mistakes, answers that ignore the question, and statements that contradict themselves.

Reply with ONLY a JSON object of the form:
{"is_incorrect": true|false, "confidence": <number between 0 and 1>, "reason": "<short explanation>"}
`))

// BuildPrompt 渲染审核提示词
func BuildPrompt(query, response string) string {
	var buf bytes.Buffer
	// 模板固定且数据只有字符串，不会失败
	_ = promptTemplate.Execute(&buf, struct{ Query, Response string }{query, response})
	return buf.String()
}
