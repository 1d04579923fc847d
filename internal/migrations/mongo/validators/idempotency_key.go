package validators

import "go.mongodb.org/mongo-driver/bson"

var IdempotencyKeyValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType":             "object",
		"required":             []string{"_id", "fingerprint", "state", "created_at", "expires_at"},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 255,
			},
			"fingerprint": bson.M{
				"bsonType":  "string",
				"minLength": 64,
				"maxLength": 64,
			},
			"state": bson.M{
				"enum": []string{"pending", "completed"},
			},
			"status_code": bson.M{
				"bsonType": []string{"int", "long"},
			},
			"created_at": bson.M{
				"bsonType": "date",
			},
			"expires_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
