package vision

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/golang/glog"

	analysis "github.com/zhouzirui/z-tavern/moodchat/internal/analysis/mood"
	"github.com/zhouzirui/z-tavern/moodchat/internal/service/video"
)

// ArkEngine 使用视觉大模型在一次调用中完成人脸定位与表情打分。
type ArkEngine struct {
	chatModel model.BaseChatModel
}

// NewArkEngine 包装一个已创建的视觉模型。
func NewArkEngine(chatModel model.BaseChatModel) (*ArkEngine, error) {
	if chatModel == nil {
		return nil, ErrEngineNotLoaded
	}
	return &ArkEngine{chatModel: chatModel}, nil
}

// DetectFaces 把帧作为图片发送给模型，返回模型给出的人脸顺序。
func (e *ArkEngine) DetectFaces(ctx context.Context, frame video.Frame) ([]Face, error) {
	if len(frame.Data) == 0 {
		return nil, fmt.Errorf("empty frame")
	}

	imageURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(frame.Data)
	messages := []*schema.Message{
		schema.SystemMessage(arkSystemPrompt),
		{
			Role: schema.User,
			MultiContent: []schema.ChatMessagePart{
				{Type: schema.ChatMessagePartTypeText, Text: arkUserPrompt},
				{
					Type: schema.ChatMessagePartTypeImageURL,
					ImageURL: &schema.ChatMessageImageURL{
						URL:    imageURL,
						Detail: schema.ImageURLDetailLow,
					},
				},
			},
		},
	}

	msg, err := e.chatModel.Generate(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("vision model invoke failed: %w", err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return nil, fmt.Errorf("vision model returned empty content")
	}

	out, err := parseFacesOutput(msg.Content)
	if err != nil {
		glog.V(1).Infof("[vision] ark output parse failed: %v", err)
		return nil, err
	}
	return out.toFaces(), nil
}

// Expressions 返回检测阶段已经给出的表情得分。
func (e *ArkEngine) Expressions(_ context.Context, _ video.Frame, face Face) (*analysis.Scores, error) {
	if face.Expressions == nil || face.Expressions.Len() == 0 {
		return nil, ErrNoExpressions
	}
	return face.Expressions, nil
}

// parseFacesOutput 解析模型返回文本中的 JSON 对象。
func parseFacesOutput(content string) (*wireFaces, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("missing json object")
	}

	payload := &wireFaces{}
	if err := sonic.Unmarshal([]byte(trimmed[start:end+1]), payload); err != nil {
		return nil, err
	}
	return payload, nil
}

const arkSystemPrompt = "You are a facial expression analyzer. Locate every human face in the image and score its expression.\nReturn only one JSON object: {\"faces\": [{\"box\": {\"x\": number, \"y\": number, \"width\": number, \"height\": number}, \"score\": number, \"expressions\": {\"neutral\": number, \"happy\": number, \"sad\": number, \"angry\": number, \"fearful\": number, \"disgusted\": number, \"surprised\": number}}]}.\nScores are probabilities between 0 and 1. Return {\"faces\": []} when no face is visible. Do not output any other text."

const arkUserPrompt = "Analyze the faces in this camera frame."
