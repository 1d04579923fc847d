package validators

import "go.mongodb.org/mongo-driver/bson"

var OtpChallengeValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType":             "object",
		"required":             []string{"_id", "code_hash", "issued_at", "expires_at", "attempts"},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType":  "string",
				"maxLength": 254,
			},
			"code_hash": bson.M{
				"bsonType": "binData",
			},
			"issued_at": bson.M{
				"bsonType": "date",
			},
			"expires_at": bson.M{
				"bsonType": "date",
			},
			"attempts": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  0,
			},
		},
	},
}
