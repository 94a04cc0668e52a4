package flow

import (
	"log/slog"

	"github.com/BTreeMap/TalkyTrainer/internal/models"
	"github.com/BTreeMap/TalkyTrainer/internal/store"
)

// DefaultBootstrapPrompt is installed as the current prompt the first time a key is used.
const DefaultBootstrapPrompt = `You are a specialized chatbot for a pool construction company.
Your role is to gather information about potential clients' pool projects.
Maintain a professional yet friendly tone.

Required information to gather:
- Contact information (name, phone)
- Property details (address, plot size)
- Pool specifications (dimensions, materials)
- Access requirements for machinery

Guidelines:
1. Keep responses concise and clear
2. Ask for one piece of information at a time
3. Confirm information when received
4. Be helpful and patient
5. Maintain a natural conversation flow`

// DefaultModificationAnalyzerPrompt asks the model to detect modification requests.
// The rendered conversation is appended after it.
const DefaultModificationAnalyzerPrompt = `Analiza esta conversación entre un usuario y un chatbot experto en piscinas.
El usuario puede estar sugiriendo modificaciones sobre cómo debe comportarse o responder el bot.

Detecta si hay alguna sugerencia de modificación y extrae la información en formato JSON:
{
    "is_modification": boolean,
    "modification_type": "comportamiento" | "flujo" | "respuestas" | "otro",
    "description": "Descripción detallada de la modificación sugerida",
    "severity": "alta" | "media" | "baja",
    "implementation_notes": "Notas sobre cómo implementar el cambio",
    "delay_time": number | null
}

Usa "delay_time" solo si el usuario pide cambiar el tiempo de espera antes de que el bot responda, expresado en segundos.
Si no hay modificación sugerida, responde con "is_modification": false y los demás campos null.
Responde SOLO con el JSON, sin explicaciones adicionales.`

// DefaultNextIterationPrompt is appended to the current prompt when generating replies.
const DefaultNextIterationPrompt = `Mantienes una conversación con un cliente potencial sobre piscinas.

Instrucciones:
1. Si detectas que el usuario está sugiriendo una modificación, reconócela
2. Mantén un tono profesional pero cercano
3. Asegúrate de recopilar toda la información necesaria de forma natural
4. Si el usuario dice "salir", confirma que quiere terminar
5. Adapta tu tono según el cliente

Responde de manera natural y conversacional.`

// DefaultTrainerPrompt is the system prompt of the regeneration call.
const DefaultTrainerPrompt = "You are an AI that improves chatbot prompts based on user feedback and modifications."

// Templates resolves business templates, filling blank fields with the built-in defaults.
type Templates struct {
	store store.TemplateStore
}

// NewTemplates creates a resolver. st may be nil to always use the defaults.
func NewTemplates(st store.TemplateStore) *Templates {
	return &Templates{store: st}
}

// Resolve never fails: lookup errors are logged and the defaults are used.
func (t *Templates) Resolve(businessID string) models.BusinessTemplate {
	resolved := models.BusinessTemplate{BusinessID: businessID}
	if t != nil && t.store != nil && businessID != "" {
		stored, err := t.store.GetBusinessTemplate(businessID)
		if err != nil {
			slog.Warn("Templates Resolve lookup failed, using defaults", "error", err, "businessID", businessID)
		} else if stored != nil {
			resolved = *stored
		}
	}
	if resolved.ModificationAnalyzerPrompt == "" {
		resolved.ModificationAnalyzerPrompt = DefaultModificationAnalyzerPrompt
	}
	if resolved.NextIterationPrompt == "" {
		resolved.NextIterationPrompt = DefaultNextIterationPrompt
	}
	if resolved.TrainerPrompt == "" {
		resolved.TrainerPrompt = DefaultTrainerPrompt
	}
	return resolved
}
