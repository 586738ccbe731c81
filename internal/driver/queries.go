package driver

const (
	SaveMeetingQuery = `
		MERGE (m:Meeting {uuid: $uuid})
		SET m.title = $title,
			m.summary = $summary,
			m.transcript = $transcript,
			m.created_at = $created_at,
			m.action_count = $action_count
		RETURN m.uuid AS uuid
	`

	SaveAttendeeQuery = `
		MATCH (m:Meeting {uuid: $meeting_uuid})
		MERGE (p:Person {name: $name})
		SET p.email = CASE WHEN $email = "" THEN p.email ELSE $email END
		MERGE (p)-[:ATTENDED]->(m)
		RETURN p.name AS name
	`

	SaveTopicQuery = `
		MATCH (m:Meeting {uuid: $meeting_uuid})
		MERGE (t:Topic {name: $name})
		MERGE (m)-[:DISCUSSED]->(t)
		RETURN t.name AS name
	`

	SaveScheduledEventQuery = `
		MATCH (m:Meeting {uuid: $meeting_uuid})
		MERGE (e:Event {event_id: $event_id})
		SET e.title = $title,
			e.action_type = $action_type,
			e.status = $status
		MERGE (m)-[:PRODUCED]->(e)
		RETURN e.event_id AS event_id
	`

	GetRecentMeetingsQuery = `
		MATCH (m:Meeting)
		OPTIONAL MATCH (p:Person)-[:ATTENDED]->(m)
		WITH m, collect(p.name) AS participants
		RETURN m.uuid AS uuid, m.title AS title, m.summary AS summary,
			m.created_at AS created_at, participants
		ORDER BY m.created_at DESC
		LIMIT $limit
	`

	SearchMeetingsQuery = `
		MATCH (m:Meeting)
		OPTIONAL MATCH (m)-[:DISCUSSED]->(t:Topic)
		OPTIONAL MATCH (p:Person)-[:ATTENDED]->(m)
		WITH m, collect(DISTINCT toLower(t.name)) AS topics, collect(DISTINCT p.name) AS participants
		WHERE toLower(m.title) CONTAINS $query
			OR toLower(m.summary) CONTAINS $query
			OR any(topic IN topics WHERE topic CONTAINS $query)
		RETURN m.uuid AS uuid, m.title AS title, m.summary AS summary,
			m.created_at AS created_at, participants
		ORDER BY m.created_at DESC
		LIMIT $limit
	`
)
