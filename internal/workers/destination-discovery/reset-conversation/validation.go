package resetconversation

import "destination-discovery/internal/common/validation"

var inputSchema = validation.MustCompile(`{
  "type": "object",
  "required": ["tripId", "userId"],
  "properties": {
    "tripId": {"type": "integer", "minimum": 1},
    "userId": {"type": "integer", "minimum": 1}
  }
}`)
