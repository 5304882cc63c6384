package anthropic

const (
	EventMessageStart      = "message_start"
	EventContentBlockStart = "content_block_start"
	EventContentBlockDelta = "content_block_delta"
	EventContentBlockStop  = "content_block_stop"
	EventMessageDelta      = "message_delta"
	EventMessageStop       = "message_stop"
)

const (
	DeltaTypeText      = "text_delta"
	DeltaTypeInputJSON = "input_json_delta"
)

// StreamEvent is one SSE frame to the client: the event name plus its JSON
// payload.
type StreamEvent struct {
	Name string
	Data any
}

type MessageStartEvent struct {
	Type    string          `json:"type"`
	Message MessageResponse `json:"message"`
}

type ContentBlockStartEvent struct {
	Type         string       `json:"type"`
	Index        int          `json:"index"`
	ContentBlock ContentBlock `json:"content_block"`
}

type StreamDelta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
}

type ContentBlockDeltaEvent struct {
	Type  string      `json:"type"`
	Index int         `json:"index"`
	Delta StreamDelta `json:"delta"`
}

type ContentBlockStopEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
}

type MessageDeltaBody struct {
	StopReason string `json:"stop_reason,omitempty"`
}

type MessageDeltaEvent struct {
	Type  string           `json:"type"`
	Delta MessageDeltaBody `json:"delta"`
	Usage Usage            `json:"usage"`
}

type MessageStopEvent struct {
	Type string `json:"type"`
}

func NewMessageStart(message MessageResponse) StreamEvent {
	return StreamEvent{Name: EventMessageStart, Data: MessageStartEvent{Type: EventMessageStart, Message: message}}
}

func NewContentBlockStart(index int, block ContentBlock) StreamEvent {
	return StreamEvent{Name: EventContentBlockStart, Data: ContentBlockStartEvent{Type: EventContentBlockStart, Index: index, ContentBlock: block}}
}

func NewTextDelta(index int, text string) StreamEvent {
	return StreamEvent{Name: EventContentBlockDelta, Data: ContentBlockDeltaEvent{
		Type: EventContentBlockDelta, Index: index,
		Delta: StreamDelta{Type: DeltaTypeText, Text: text},
	}}
}

func NewInputJSONDelta(index int, partialJSON string) StreamEvent {
	return StreamEvent{Name: EventContentBlockDelta, Data: ContentBlockDeltaEvent{
		Type: EventContentBlockDelta, Index: index,
		Delta: StreamDelta{Type: DeltaTypeInputJSON, PartialJSON: partialJSON},
	}}
}

func NewContentBlockStop(index int) StreamEvent {
	return StreamEvent{Name: EventContentBlockStop, Data: ContentBlockStopEvent{Type: EventContentBlockStop, Index: index}}
}

func NewMessageDelta(stopReason string, usage Usage) StreamEvent {
	return StreamEvent{Name: EventMessageDelta, Data: MessageDeltaEvent{
		Type: EventMessageDelta, Delta: MessageDeltaBody{StopReason: stopReason}, Usage: usage,
	}}
}

func NewMessageStop() StreamEvent {
	return StreamEvent{Name: EventMessageStop, Data: MessageStopEvent{Type: EventMessageStop}}
}
