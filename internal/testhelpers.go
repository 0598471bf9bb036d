package internal

// CreateTestChat creates a conversation holding one message of every kind
func CreateTestChat(id string) *Chat {
	return &Chat{
		ID:        id,
		Title:     "Test Conversation",
		CreatedAt: "2024-05-01T10:00:00Z",
		UpdatedAt: "2024-05-01T10:05:00Z",
		History: []Message{
			CreateTestUserMessage("m1", "How many orders shipped last week?"),
			CreateTestFunctionCall("m2", "execute_sql", "SELECT COUNT(*) FROM orders", "Counting shipped orders"),
			CreateTestFunctionResult("m3", "m2", `{"text":["42 orders"],"image":[],"table":[{"columns":["count"],"data":[[42]]}]}`),
			CreateTestAssistantText("m4", "42 orders shipped. <image-tag>chart-1</image-tag>"),
		},
		FileMap: map[string]string{"chart-1": "https://assets.example.com/chart-1.png"},
	}
}

// CreateTestUserMessage creates a user message
func CreateTestUserMessage(id, content string) Message {
	return Message{ID: id, Role: RoleUser, Kind: KindUser, Content: content}
}

// CreateTestAssistantText creates an assistant text message
func CreateTestAssistantText(id, content string) Message {
	return Message{ID: id, Role: RoleAssistant, Kind: KindAssistantText, Content: content}
}

// CreateTestFunctionCall creates an assistant function call
func CreateTestFunctionCall(id, name, content, explanation string) Message {
	return Message{
		ID:   id,
		Role: RoleAssistant,
		Kind: KindFunctionCall,
		FunctionCall: &FunctionCall{
			Name:        name,
			Content:     content,
			Explanation: explanation,
		},
	}
}

// CreateTestFunctionResult creates a function result belonging to callID
func CreateTestFunctionResult(id, callID, output string) Message {
	return Message{
		ID:        id,
		Role:      RoleFunction,
		Kind:      KindFunctionResult,
		BelongsTo: callID,
		Output:    output,
	}
}
