package bootstrap

import (
	"gorm.io/gorm"

	"github.com/dialwise/dialwise/internal/models"
	"github.com/dialwise/dialwise/pkg/classifier"
	"github.com/dialwise/dialwise/pkg/logger"
)

// SeedDefaults writes the starter objection handlers, scripts and config
// entries. Each table is seeded only when empty, so restarts never duplicate
// or overwrite operator edits.
func SeedDefaults(db *gorm.DB) error {
	if err := seedConfigDefaults(db); err != nil {
		return err
	}
	if err := seedObjectionHandlers(db); err != nil {
		return err
	}
	if err := seedScripts(db); err != nil {
		return err
	}
	return nil
}

func seedConfigDefaults(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.ConfigEntry{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	defaults := []struct {
		key    string
		format models.ConfigFormat
		value  string
		desc   string
	}{
		{"target_talk_listen_ratio", models.FormatFloat, "0.4", "Ideal agent talk share of the conversation"},
		{"stuck_call_threshold_sec", models.FormatInt, "3600", "Age after which in-progress calls are reclaimed"},
		{"dashboard_broadcast", models.FormatBool, "true", "Whether lifecycle events reach dashboards"},
	}
	for _, d := range defaults {
		if err := models.SetConfigValue(db, d.key, d.format, d.value, d.desc); err != nil {
			return err
		}
	}
	logger.Info("seeded default config entries")
	return nil
}

func seedObjectionHandlers(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.ObjectionHandler{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	handlers := []models.ObjectionHandler{
		{
			Type: string(classifier.Price), Language: "en", Priority: 7,
			Technique: "value_framing",
			Response:  "I understand price matters. Most of our customers found the monthly savings covered the cost within the first quarter.",
		},
		{
			Type: string(classifier.Price), Language: "hi", Priority: 7,
			Technique: "value_framing",
			Response:  "Main samajh sakta hoon. Zyaadatar customers ko pehle teen mahine mein hi bachat se cost recover ho gayi.",
		},
		{
			Type: string(classifier.Timing), Language: "en", Priority: 6,
			Technique: "urgency",
			Response:  "That makes sense. Just so you know, the current plan pricing is only locked in until the end of the month.",
		},
		{
			Type: string(classifier.Trust), Language: "en", Priority: 6,
			Technique: "social_proof",
			Response:  "Completely fair. We work with over two hundred businesses in your area; I can share references before you decide.",
		},
		{
			Type: string(classifier.Need), Language: "en", Priority: 5,
			Technique: "discovery",
			Response:  "Got it. May I ask how you currently handle this? Many teams did not realize how much time it was costing them.",
		},
		{
			Type: string(classifier.ThinkAboutIt), Language: "en", Priority: 5,
			Technique: "soft_close",
			Response:  "Of course. What specifically would you like to think over? Maybe I can answer it right now.",
		},
	}
	for i := range handlers {
		handlers[i].Active = true
		if err := db.Create(&handlers[i]).Error; err != nil {
			return err
		}
	}
	logger.Info("seeded default objection handlers")
	return nil
}

func seedScripts(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.SalesScript{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	scripts := []models.SalesScript{
		{
			ProductID: 1, Name: "Standard opening", Type: models.ScriptTypeOpening,
			Stage: models.StageGreeting, Language: "en", Priority: 5,
			Content:   "Hello {{customer_name}}, this is {{agent_name}} calling from {{company}}. Do you have a quick minute?",
			Variables: models.StringList{"customer_name", "agent_name", "company"},
		},
		{
			ProductID: 1, Name: "Discovery questions", Type: models.ScriptTypeDiscovery,
			Stage: models.StageQualification, Language: "en", Priority: 5,
			Technique: "discovery",
			Content:   "To make sure this is relevant for you: how are you handling {{pain_point}} today?",
			Variables: models.StringList{"pain_point"},
		},
		{
			ProductID: 1, Name: "Qualified pitch", Type: models.ScriptTypePitch,
			Stage: models.StagePresentation, Language: "en", Priority: 7,
			MinQualificationScore: 20,
			Content:               "Based on what you told me, {{product}} would save your team about {{savings}} every month.",
			Variables:             models.StringList{"product", "savings"},
		},
		{
			ProductID: 1, Name: "Budget-sensitive close", Type: models.ScriptTypeClosing,
			Stage: models.StageClosing, Language: "en", Priority: 6,
			TriggerKeywords: models.StringList{"discount", "cheaper", "offer"},
			Technique:       "concession_close",
			Content:         "If I can get you {{discount}} off the first quarter, could we get you started today?",
			Variables:       models.StringList{"discount"},
		},
	}
	for i := range scripts {
		scripts[i].Active = true
		if err := db.Create(&scripts[i]).Error; err != nil {
			return err
		}
	}
	logger.Info("seeded default sales scripts")
	return nil
}
