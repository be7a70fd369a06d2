package scanning

// Request bounds shared by every model backend
const (
	requestTemperature = 0.1
	requestMaxTokens   = 500
)

// systemPrompt is the shared instruction used by all model providers
const systemPrompt = `你是一个专业的中国发票识别助手。
请仔细分析提供的发票图片，并严格按照定义的 JSON Schema 提取信息。
如果内容是行程单，所有字段直接返回 null。
如果某个字段在图片中无法找到或无法确定，请将其值设为 null。
对于 "invoice_type"，请明确指出是"普通发票"还是"专用发票"或类似的准确表述（如"电子发票（普通发票）"）。
对于 "category"，请提取主要的商品或服务名称，例如 "*信息技术服务*咨询费"、"*办公用品*采购"。如果是多个项目，选择最主要的一个或进行简短的综合描述。
对于 "amount"，请提取图片中价税合计的小写金额，并以字符串形式返回，例如 "198.00"。
对于 "invoice_number"，请提取发票号码。

Return ONLY valid JSON in this exact format:
{
  "invoice_type": "普通发票",
  "invoice_number": "12345678",
  "category": "*住宿服务*住宿费",
  "amount": "198.00"
}

Do not include any text before or after the JSON and do not use markdown code blocks.`

// userPrompt accompanies the page image
const userPrompt = "请从这张发票图片中提取关键信息。"

// fieldDescriptions document each requested field for schema-aware backends
var fieldDescriptions = map[string]string{
	"invoice_type":   "发票类型，例如 '增值税普通发票', '增值税专用发票', '普通发票', '专用发票'",
	"invoice_number": "发票号码",
	"category":       "主要货物或应税劳务、服务名称，例如 *住宿服务*费",
	"amount":         "价税合计（小写）金额，字符串格式，例如 '198.00'",
}

// fieldOrder is the order fields are listed in request schemas
var fieldOrder = []string{"invoice_type", "invoice_number", "category", "amount"}

// InvoiceJSONSchema returns the JSON Schema the model response must satisfy.
// amount also accepts a bare number since models often drop the quotes.
func InvoiceJSONSchema() map[string]any {
	props := make(map[string]any, len(fieldOrder))
	for _, name := range fieldOrder {
		props[name] = map[string]any{
			"type":        []string{"string", "null"},
			"description": fieldDescriptions[name],
		}
	}
	props["amount"] = map[string]any{
		"type":        []string{"string", "number", "null"},
		"description": fieldDescriptions["amount"],
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
	}
}
