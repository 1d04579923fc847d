package validators

import "go.mongodb.org/mongo-driver/bson"

var AppointmentValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"_id",
			"strong_id",
			"employee_id",
			"service_id",
			"date",
			"time",
			"starts_at",
			"customer",
			"status",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType":  "string",
				"minLength": 36,
				"maxLength": 36,
			},

			"strong_id": bson.M{
				"bsonType": "string",
				"pattern":  `^APT-[0-9]{4}-[0-9]{6,}$`,
			},

			"employee_id": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  1,
			},

			"service_id": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  0,
			},

			"date": bson.M{
				"bsonType": "string",
				"pattern":  `^[0-9]{4}-[0-9]{2}-[0-9]{2}$`,
			},

			"time": bson.M{
				"bsonType": "string",
				"pattern":  `^([01][0-9]|2[0-3]):[0-5][0-9]$`,
			},

			"starts_at": bson.M{
				"bsonType": "date",
			},

			"customer": bson.M{
				"bsonType": "object",
				"required": []string{"name", "email"},
				"properties": bson.M{
					"name": bson.M{
						"bsonType":  "string",
						"minLength": 2,
						"maxLength": 100,
					},
					"email": bson.M{
						"bsonType":  "string",
						"maxLength": 254,
					},
					"phone": bson.M{
						"bsonType": "string",
						"pattern":  `^\+[1-9][0-9]{7,14}$`,
					},
				},
			},

			"status": bson.M{
				"enum": []string{"confirmed", "cancelled"},
			},

			"created_at": bson.M{
				"bsonType": "date",
			},

			"updated_at": bson.M{
				"bsonType": "date",
			},

			"cancelled_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
