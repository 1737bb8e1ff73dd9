package chatmessage

import "destination-discovery/internal/common/validation"

var inputSchema = validation.MustCompile(`{
  "type": "object",
  "required": ["tripId", "userId", "message"],
  "properties": {
    "tripId":  {"type": "integer", "minimum": 1},
    "userId":  {"type": "integer", "minimum": 1},
    "message": {"type": "string", "minLength": 1, "maxLength": 4000}
  }
}`)
