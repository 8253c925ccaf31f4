package tts

// 已知后端的表单展示信息。只有 parler、canary、fish 的模型能读取 <ruby> 注音标记。
var catalog = map[string]Backend{
	"parler": {
		Label:              "Parler TTS",
		Ruby:               true,
		Info:               "Parler TTS: Uses separate voice description for fine-grained control over voice characteristics.",
		Placeholder:        "Describe the voice characteristics...",
		DefaultDescription: "A female speaker with a slightly high-pitched voice delivers her words at a moderate speed with a quite monotone tone in a confined environment, resulting in a quite clear audio recording.",
	},
	"canary": {
		Label:              "Canary TTS",
		Ruby:               true,
		Info:               "Canary TTS: Uses system message format for voice description.",
		Placeholder:        "Describe the voice characteristics (will be used as system message)...",
		DefaultDescription: "A man voice, with a very hight pitch, speaks in a monotone manner. The recording quality is very noises and close-sounding, indicating a good or excellent audio capture.",
	},
	"fish": {
		Label:              "Fish Speech",
		Ruby:               true,
		Info:               "Fish Speech: Supports emotion markers like (angry), (sad), (excited). Add reference audio description for voice cloning.",
		Placeholder:        "Reference audio description or voice characteristics...",
		DefaultDescription: "A clear female voice with natural intonation. You can add emotion markers like (excited) or (sad) in your text.",
	},
	"vits": {
		Label:       "VITS (local)",
		Info:        "VITS: Runs a local sherpa-onnx model. The voice description is ignored.",
		Placeholder: "Not used by this model",
	},
	"edge": {
		Label:       "Edge TTS",
		Info:        "Edge TTS: Microsoft neural voice selected in the server configuration. The voice description is ignored.",
		Placeholder: "Not used by this model",
	},
	"tencent": {
		Label:       "Tencent Cloud TTS",
		Info:        "Tencent Cloud TTS: Japanese voice selected by voice type in the server configuration. The voice description is ignored.",
		Placeholder: "Not used by this model",
	},
	"openai": {
		Label:       "OpenAI TTS",
		Info:        "OpenAI TTS: Speech API voice selected in the server configuration. The voice description is ignored.",
		Placeholder: "Not used by this model",
	},
	"google": {
		Label:       "Google Cloud TTS",
		Info:        "Google Cloud TTS: ja-JP voice selected in the server configuration. The voice description is ignored.",
		Placeholder: "Not used by this model",
	},
	"say": {
		Label:       "macOS say",
		Info:        "macOS say: Offline system voice (Kyoko by default). The voice description is ignored.",
		Placeholder: "Not used by this model",
	},
}

// fillMeta 用已知信息补齐未设置的展示字段。
func fillMeta(b *Backend) {
	known, ok := catalog[b.Name]
	if !ok {
		if b.Label == "" {
			b.Label = b.Name
		}
		return
	}
	if b.Label == "" {
		b.Label = known.Label
	}
	if b.Info == "" {
		b.Info = known.Info
	}
	if b.Placeholder == "" {
		b.Placeholder = known.Placeholder
	}
	if b.DefaultDescription == "" {
		b.DefaultDescription = known.DefaultDescription
	}
	if known.Ruby {
		b.Ruby = true
	}
}
