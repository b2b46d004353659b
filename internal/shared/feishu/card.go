package feishu

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"slices"
)

// 卡片标题颜色
const (
	TemplateBlue   = "blue"
	TemplateGreen  = "green"
	TemplateOrange = "orange"
	TemplateRed    = "red"
)

// SendCard 向群聊发送消息卡片
func (c *FeishuClient) SendCard(ctx context.Context, chatID string, card InteractiveCard) error {
	return c.sendCard(ctx, "chat_id", chatID, card)
}

// SendUserCard 向个人发送消息卡片（open_id）
func (c *FeishuClient) SendUserCard(ctx context.Context, userID string, card InteractiveCard) error {
	return c.sendCard(ctx, "open_id", userID, card)
}

func (c *FeishuClient) sendCard(ctx context.Context, idType, id string, card InteractiveCard) error {
	cardBytes, err := json.Marshal(card)
	if err != nil {
		return fmt.Errorf("序列化卡片内容失败: %w", err)
	}

	reqBody := map[string]interface{}{
		"receive_id": id,
		"msg_type":   "interactive",
		"content":    string(cardBytes),
	}
	path := fmt.Sprintf("/im/v1/messages?receive_id_type=%s", idType)

	var resp SendMessageResponse
	if err := c.doRequest(ctx, http.MethodPost, path, reqBody, &resp); err != nil {
		return fmt.Errorf("发送卡片消息失败: %w", err)
	}
	return nil
}

// NewAlertCard 询价通知卡片：标题、正文和可选的字段
func NewAlertCard(title, template, message string, fields map[string]string) InteractiveCard {
	card := InteractiveCard{
		Config: &CardConfig{WideScreenMode: true},
		Header: &CardHeader{
			Title:    CardText{Tag: "plain_text", Content: title},
			Template: template,
		},
		Elements: []CardElement{
			{Tag: "div", Text: &CardText{Tag: "lark_md", Content: message}},
		},
	}
	if len(fields) > 0 {
		div := CardElement{Tag: "div"}
		for _, k := range slices.Sorted(maps.Keys(fields)) {
			div.Fields = append(div.Fields, CardField{
				IsShort: true,
				Text:    CardText{Tag: "lark_md", Content: fmt.Sprintf("**%s**\n%s", k, fields[k])},
			})
		}
		card.Elements = append(card.Elements, CardElement{Tag: "hr"}, div)
	}
	return card
}

// NewQuoteAcceptedCard 成交通知卡片
func NewQuoteAcceptedCard(quoteCode, clientID, orderCode, total string) InteractiveCard {
	return NewAlertCard("询价单已成交", TemplateGreen,
		fmt.Sprintf("询价单 **%s** 双方已确认全部行项。", quoteCode),
		map[string]string{
			"客户":  clientID,
			"订单号": orderCode,
			"总金额": total,
		})
}
