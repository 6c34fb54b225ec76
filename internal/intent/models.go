package intent

// Dialogflow ES v2 REST wire types. Only the fields the relay reads are
// declared.

type detectIntentRequest struct {
	QueryInput queryInput `json:"queryInput"`
}

type queryInput struct {
	Text  *textInput  `json:"text,omitempty"`
	Event *eventInput `json:"event,omitempty"`
}

type textInput struct {
	Text         string `json:"text"`
	LanguageCode string `json:"languageCode"`
}

type eventInput struct {
	Name         string         `json:"name"`
	LanguageCode string         `json:"languageCode"`
	Parameters   map[string]any `json:"parameters,omitempty"`
}

type detectIntentResponse struct {
	ResponseID  string       `json:"responseId"`
	QueryResult *queryResult `json:"queryResult"`
}

type queryResult struct {
	QueryText                 string               `json:"queryText"`
	Parameters                map[string]any       `json:"parameters"`
	FulfillmentText           string               `json:"fulfillmentText"`
	FulfillmentMessages       []fulfillmentMessage `json:"fulfillmentMessages"`
	OutputContexts            []wireContext        `json:"outputContexts"`
	Intent                    *wireIntent          `json:"intent"`
	IntentDetectionConfidence float64              `json:"intentDetectionConfidence"`
}

type fulfillmentMessage struct {
	Text    *messageText   `json:"text"`
	Payload map[string]any `json:"payload"`
}

type messageText struct {
	Text []string `json:"text"`
}

type wireIntent struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

type wireContext struct {
	Name          string         `json:"name"`
	LifespanCount int            `json:"lifespanCount,omitempty"`
	Parameters    map[string]any `json:"parameters,omitempty"`
}

type listContextsResponse struct {
	Contexts      []wireContext `json:"contexts"`
	NextPageToken string        `json:"nextPageToken"`
}
