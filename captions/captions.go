// Package captions генерирует подписи к изображениям через внешнюю мультимодальную модель.
package captions

import (
	"context"
	"errors"
	"strings"
)

var ErrEmptyCaption = errors.New("caption service returned empty content")

// Generator возвращает однострочную подпись для изображения в base64
type Generator interface {
	GenerateCaption(ctx context.Context, imageBase64 string, mimeType string) (string, error)
}

const UserPrompt = "create a one line instagram style caption for this image"

const SystemInstruction = `You are an AI caption generator that creates short, human-like Instagram captions based on the provided image.
Output should always be a one-liner (max 12-15 words).
Must sound natural, catchy, aesthetic and relatable like a real person wrote it.
Include 2-4 trending hashtags that fit the vibe of the image.
Add 1-2 emojis that feel relevant to the image and caption.
Avoid sounding robotic, overly formal, or repetitive.
Do not describe the image literally (e.g., "This is a dog"), instead create a vibe, mood, or feeling.
Each caption should look ready-to-post on Instagram.
Example Outputs:
"Golden hour, golden vibes ✨🌅 #ChasingLight #EveningGlow"
"Coffee first, adulting later ☕😴 #MondayMood #DailyDose"
"Lost in the city lights 🌃✨ #UrbanVibes #NightFeels"`

// normalize склеивает ответ модели в одну строку
func normalize(text string) (string, error) {
	caption := strings.Join(strings.Fields(text), " ")
	if caption == "" {
		return "", ErrEmptyCaption
	}
	return caption, nil
}
